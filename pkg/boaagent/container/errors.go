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

package container

import (
	"fmt"
	"strings"
)

const maxContainerIDLength = 12

// classifyDockerError turns a raw Docker SDK error string into the shorter,
// operator-facing form that ends up in a ServerError{..., message} frame.
// Unrecognized errors pass through unchanged.
func classifyDockerError(errMsg string, containerID string) string {
	if len(containerID) > maxContainerIDLength {
		containerID = containerID[:maxContainerIDLength]
	}

	switch {
	case strings.Contains(errMsg, "No such container") || strings.Contains(errMsg, "not found"):
		return fmt.Sprintf("can't find container: %s", containerID)
	case strings.Contains(errMsg, "is not running"):
		return fmt.Sprintf("container is not running: %s", containerID)
	case strings.Contains(errMsg, "no such file or directory") || strings.Contains(errMsg, "connection refused"):
		return "docker is unavailable"
	default:
		return errMsg
	}
}

// newRuntimeError builds a RuntimeError from a raw Docker SDK error,
// classifying its message for the caller before it reaches the wire as a
// ServerError{ProcessStartFailed, ...} or similar.
func newRuntimeError(op string, containerID string, err error) error {
	return &RuntimeError{Reason: fmt.Sprintf("%s: %s", op, classifyDockerError(err.Error(), containerID))}
}
