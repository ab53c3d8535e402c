// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/json"
	"fmt"
)

// envelope is the {"type": ..., "data": ...} wire shape shared by both
// directions.
type envelope struct {
	Type ClientPacketType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// DecodeClient decodes one text frame into a ClientPacket. Any malformed
// envelope or unrecognized type tag is reported as a DecodeError, which
// callers surface as ServerError{InvalidJson}.
func DecodeClient(text []byte) (ClientPacket, error) {
	var env envelope
	if err := json.Unmarshal(text, &env); err != nil {
		return ClientPacket{}, &DecodeError{Reason: err.Error()}
	}

	pkt := ClientPacket{Type: env.Type}

	switch env.Type {
	case TypeProcessOpen:
		// Empty payload; nothing to decode.
	case TypeProcessClose:
		if err := json.Unmarshal(env.Data, &pkt.ProcessClose); err != nil {
			return ClientPacket{}, &DecodeError{Reason: err.Error()}
		}
	case TypeProcessControlSignal:
		if err := json.Unmarshal(env.Data, &pkt.ProcessControlSignal); err != nil {
			return ClientPacket{}, &DecodeError{Reason: err.Error()}
		}
	case TypeUploadStart:
		if err := json.Unmarshal(env.Data, &pkt.UploadStart); err != nil {
			return ClientPacket{}, &DecodeError{Reason: err.Error()}
		}
	case TypeUploadFinish:
		if err := json.Unmarshal(env.Data, &pkt.UploadFinish); err != nil {
			return ClientPacket{}, &DecodeError{Reason: err.Error()}
		}
	default:
		return ClientPacket{}, &DecodeError{Reason: fmt.Sprintf("unknown packet type %q", env.Type)}
	}

	return pkt, nil
}

// EncodeServer encodes a ServerPacket into one text frame.
func EncodeServer(pkt ServerPacket) ([]byte, error) {
	var data any

	switch pkt.Type {
	case TypeProcessOpenResult:
		data = pkt.ProcessOpenResult
	case TypeProcessCloseResult:
		data = pkt.ProcessCloseResult
	case TypeProcessOutput:
		data = pkt.ProcessOutput
	case TypeProcessEvent:
		data = pkt.ProcessEvent
	case TypeServerError:
		data = pkt.ServerError
	default:
		return nil, fmt.Errorf("unknown server packet type %q", pkt.Type)
	}

	return json.Marshal(struct {
		Type ServerPacketType `json:"type"`
		Data any              `json:"data"`
	}{Type: pkt.Type, Data: data})
}

// DecodeError reports a malformed or unrecognized client frame. It always
// maps to ServerError{InvalidJson} at the orchestrator level.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid json: %s", e.Reason)
}
