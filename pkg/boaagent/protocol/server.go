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

// ServerPacketType names the envelope's "type" discriminator for packets
// sent by the server.
type ServerPacketType string

const (
	TypeProcessOpenResult  ServerPacketType = "ProcessOpenResult"
	TypeProcessCloseResult ServerPacketType = "ProcessCloseResult"
	TypeProcessOutput      ServerPacketType = "ProcessOutput"
	TypeProcessEvent       ServerPacketType = "ProcessEvent"
	TypeServerError        ServerPacketType = "ServerError"
)

// ServerErrorCode enumerates the taxonomy of §7.
type ServerErrorCode string

const (
	ErrInvalidJson             ServerErrorCode = "InvalidJson"
	ErrInvalidContainerId      ServerErrorCode = "InvalidContainerId"
	ErrProcessStartFailed      ServerErrorCode = "ProcessStartFailed"
	ErrTempFileCreationFailed  ServerErrorCode = "TempFileCreationFailed"
	ErrUploadAlreadyInProgress ServerErrorCode = "UploadAlreadyInProgress"
	ErrUploadFailed            ServerErrorCode = "UploadFailed"
	ErrUnexpectedBinaryFrame   ServerErrorCode = "UnexpectedBinaryFrame"
)

// ProcessOpenResultData is the payload of a ProcessOpenResult packet.
type ProcessOpenResultData struct {
	ContainerID string `json:"container_id"`
}

// ProcessCloseResultData is the payload of a ProcessCloseResult packet.
type ProcessCloseResultData struct {
	Success bool `json:"success"`
}

// ProcessOutputKind distinguishes stdout from stderr chunks.
type ProcessOutputKind string

const (
	OutputStdOut ProcessOutputKind = "StdOut"
	OutputStdErr ProcessOutputKind = "StdErr"
)

// ProcessOutputData is the payload of a ProcessOutput packet: exactly one
// of StdOut/StdErr, indicated by Kind.
type ProcessOutputData struct {
	Kind ProcessOutputKind
	Text string
}

// MarshalJSON encodes {"StdOut": text} or {"StdErr": text}.
func (d ProcessOutputData) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{string(d.Kind): d.Text})
}

// UnmarshalJSON decodes the single-key object form.
func (d *ProcessOutputData) UnmarshalJSON(data []byte) error {
	var obj map[string]string
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	if text, ok := obj[string(OutputStdOut)]; ok {
		d.Kind = OutputStdOut
		d.Text = text
		return nil
	}

	if text, ok := obj[string(OutputStdErr)]; ok {
		d.Kind = OutputStdErr
		d.Text = text
		return nil
	}

	return fmt.Errorf("invalid process output payload")
}

// ProcessEventKind distinguishes the three ProcessEvent variants.
type ProcessEventKind string

const (
	EventStarted  ProcessEventKind = "Started"
	EventFinished ProcessEventKind = "Finished"
	EventTimedOut ProcessEventKind = "TimedOut"
)

// ProcessEventData is the payload of a ProcessEvent packet. ExitCode is only
// meaningful when Kind is EventFinished.
type ProcessEventData struct {
	Kind     ProcessEventKind
	ExitCode int64
}

// MarshalJSON encodes "Started"/"TimedOut" as bare strings and Finished as
// {"Finished": {"exit_code": n}}.
func (d ProcessEventData) MarshalJSON() ([]byte, error) {
	if d.Kind == EventFinished {
		return json.Marshal(map[string]any{
			"Finished": map[string]int64{"exit_code": d.ExitCode},
		})
	}

	return json.Marshal(string(d.Kind))
}

// UnmarshalJSON mirrors MarshalJSON's encoding.
func (d *ProcessEventData) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err == nil {
		switch ProcessEventKind(tag) {
		case EventStarted, EventTimedOut:
			d.Kind = ProcessEventKind(tag)
			return nil
		default:
			return fmt.Errorf("unknown process event tag %q", tag)
		}
	}

	var obj struct {
		Finished *struct {
			ExitCode int64 `json:"exit_code"`
		} `json:"Finished"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj.Finished == nil {
		return fmt.Errorf("invalid process event object")
	}

	d.Kind = EventFinished
	d.ExitCode = obj.Finished.ExitCode

	return nil
}

// ServerErrorData is the payload of a ServerError packet.
type ServerErrorData struct {
	Err     ServerErrorCode `json:"err"`
	Message string          `json:"message"`
}

// ServerPacket is the form encoded onto the wire for any server-originated
// message. Exactly one of the Data fields is populated, matching Type.
type ServerPacket struct {
	Type               ServerPacketType
	ProcessOpenResult  ProcessOpenResultData
	ProcessCloseResult ProcessCloseResultData
	ProcessOutput      ProcessOutputData
	ProcessEvent       ProcessEventData
	ServerError        ServerErrorData
}

// NewProcessOpenResult builds a ProcessOpenResult packet.
func NewProcessOpenResult(containerID string) ServerPacket {
	return ServerPacket{
		Type:              TypeProcessOpenResult,
		ProcessOpenResult: ProcessOpenResultData{ContainerID: containerID},
	}
}

// NewProcessCloseResult builds a ProcessCloseResult packet.
func NewProcessCloseResult(success bool) ServerPacket {
	return ServerPacket{
		Type:               TypeProcessCloseResult,
		ProcessCloseResult: ProcessCloseResultData{Success: success},
	}
}

// NewStdOut builds a ProcessOutput{StdOut} packet.
func NewStdOut(text string) ServerPacket {
	return ServerPacket{
		Type:          TypeProcessOutput,
		ProcessOutput: ProcessOutputData{Kind: OutputStdOut, Text: text},
	}
}

// NewStdErr builds a ProcessOutput{StdErr} packet.
func NewStdErr(text string) ServerPacket {
	return ServerPacket{
		Type:          TypeProcessOutput,
		ProcessOutput: ProcessOutputData{Kind: OutputStdErr, Text: text},
	}
}

// NewStarted builds a ProcessEvent{Started} packet.
func NewStarted() ServerPacket {
	return ServerPacket{Type: TypeProcessEvent, ProcessEvent: ProcessEventData{Kind: EventStarted}}
}

// NewFinished builds a ProcessEvent{Finished} packet.
func NewFinished(exitCode int64) ServerPacket {
	return ServerPacket{
		Type:         TypeProcessEvent,
		ProcessEvent: ProcessEventData{Kind: EventFinished, ExitCode: exitCode},
	}
}

// NewServerError builds a ServerError packet.
func NewServerError(code ServerErrorCode, message string) ServerPacket {
	return ServerPacket{
		Type:        TypeServerError,
		ServerError: ServerErrorData{Err: code, Message: message},
	}
}
