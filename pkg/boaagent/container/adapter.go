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

// Package container exposes a runtime-neutral contract over the Docker
// daemon: create/start/stop/remove a sandbox container, push a tar archive
// into it, and run an exec attached to its stdout/stderr.
package container

import "context"

// OutputKind distinguishes a multiplexed exec output chunk's stream.
type OutputKind int

const (
	StdOut OutputKind = iota
	StdErr
	Other
)

// OutputChunk is one decoded frame off an exec's attached output stream.
type OutputChunk struct {
	Kind OutputKind
	Data []byte
}

// ExecHandle is returned by Exec. Output yields chunks until the stream
// ends, at which point the channel is closed and ExitCode becomes safe to
// call.
type ExecHandle interface {
	// Output returns the channel of demultiplexed stdout/stderr chunks.
	Output() <-chan OutputChunk

	// ExitCode returns the exec's exit status, or -1 if the runtime has
	// not reported one. It does not wait for the exec: call it once the
	// Output channel is closed.
	ExitCode(ctx context.Context) (int64, error)
}

// Adapter is the contract the Session Orchestrator, Upload Coordinator, and
// Execution Supervisor use against the container runtime. Every method may
// fail with a RuntimeError carrying a textual reason.
type Adapter interface {
	// Create provisions a long-lived container from the compiled-in image
	// with a blocking idle command, returning a freshly generated
	// container_id and an opaque runtime handle. The container is not yet
	// started.
	Create(ctx context.Context, prefix string) (containerID string, handle string, err error)

	// Start starts a created container. Callers must guarantee a single
	// Start per lifecycle; re-Start is a protocol error, not an invariant
	// the adapter itself enforces.
	Start(ctx context.Context, handle string) error

	// UploadTar unpacks tarBytes at path inside the container, overwriting
	// existing files. path is always "/src" in this system.
	UploadTar(ctx context.Context, handle string, path string, tarBytes []byte) error

	// Exec creates a non-TTY, stdin-detached exec for argv with stdout and
	// stderr attached, and starts it.
	Exec(ctx context.Context, handle string, argv []string) (ExecHandle, error)

	// Stop sends signal ("SIGINT" or "SIGTERM") to PID 1 of the container
	// and waits for the runtime to acknowledge the stop.
	Stop(ctx context.Context, handle string, signal string) error

	// Remove deletes the container. Failure is reported via the returned
	// error but callers (the orchestrator) fold it into a success=false
	// result rather than treating it as fatal.
	Remove(ctx context.Context, handle string, force bool) error

	// InspectRunning reports whether the container is currently running,
	// used before Exec to reject requests against a stale Running state.
	InspectRunning(ctx context.Context, handle string) (bool, error)
}

// RuntimeError wraps a failure from the container runtime with a textual
// reason, per §4.3.
type RuntimeError struct {
	Reason string
}

func (e *RuntimeError) Error() string {
	return e.Reason
}
