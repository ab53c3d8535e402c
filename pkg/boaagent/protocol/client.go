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

// Package protocol implements the tagged-union JSON envelope spoken on the
// /ws connection: decoding ClientPacket values and encoding ServerPacket
// values.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ClientPacketType names the envelope's "type" discriminator for packets
// sent by the client.
type ClientPacketType string

const (
	TypeProcessOpen          ClientPacketType = "ProcessOpen"
	TypeProcessClose         ClientPacketType = "ProcessClose"
	TypeProcessControlSignal ClientPacketType = "ProcessControlSignal"
	TypeUploadStart          ClientPacketType = "UploadStart"
	TypeUploadFinish         ClientPacketType = "UploadFinish"
)

// ControlSignalKind names the variant of a ControlSignal. "Exec" carries a
// file name payload; the rest are bare tags.
type ControlSignalKind string

const (
	SignalStart     ControlSignalKind = "Start"
	SignalExec      ControlSignalKind = "Exec"
	SignalInterrupt ControlSignalKind = "Interrupt"
	SignalTerminate ControlSignalKind = "Terminate"
)

// ControlSignal is the payload of a ProcessControlSignal packet. It decodes
// either from a bare JSON string ("Start", "Interrupt", "Terminate") or from
// a single-key object ({"Exec": "main.py"}).
type ControlSignal struct {
	Kind     ControlSignalKind
	FileName string
}

// UnmarshalJSON implements the string-or-object decode described above.
func (c *ControlSignal) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch ControlSignalKind(tag) {
		case SignalStart, SignalInterrupt, SignalTerminate:
			c.Kind = ControlSignalKind(tag)
			c.FileName = ""
			return nil
		default:
			return fmt.Errorf("unknown control signal tag %q", tag)
		}
	}

	var obj struct {
		Exec *string `json:"Exec"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("invalid control signal: %w", err)
	}
	if obj.Exec == nil {
		return fmt.Errorf("invalid control signal object")
	}

	c.Kind = SignalExec
	c.FileName = *obj.Exec

	return nil
}

// MarshalJSON mirrors UnmarshalJSON's decoding rules.
func (c ControlSignal) MarshalJSON() ([]byte, error) {
	if c.Kind == SignalExec {
		return json.Marshal(map[string]string{"Exec": c.FileName})
	}

	return json.Marshal(string(c.Kind))
}

// ProcessOpenData is the (empty) payload of a ProcessOpen packet.
type ProcessOpenData struct{}

// ProcessCloseData is the payload of a ProcessClose packet.
type ProcessCloseData struct {
	ContainerID string `json:"container_id"`
}

// ProcessControlSignalData is the payload of a ProcessControlSignal packet.
type ProcessControlSignalData struct {
	ContainerID   string        `json:"container_id"`
	ControlSignal ControlSignal `json:"control_signal"`
}

// UploadStartData is the payload of an UploadStart packet.
type UploadStartData struct {
	ContainerID string `json:"container_id"`
	Path        string `json:"path"`
	Size        uint64 `json:"size"`
}

// UploadFinishData is the payload of an UploadFinish packet.
type UploadFinishData struct {
	ContainerID string `json:"container_id"`
}

// ClientPacket is the decoded form of any packet a client may send. Exactly
// one of the Data fields is populated, matching Type.
type ClientPacket struct {
	Type                 ClientPacketType
	ProcessOpen          ProcessOpenData
	ProcessClose         ProcessCloseData
	ProcessControlSignal ProcessControlSignalData
	UploadStart          UploadStartData
	UploadFinish         UploadFinishData
}
