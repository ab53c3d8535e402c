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

// Package execsup pumps a running exec's attached stdout/stderr into
// outbound protocol events and reports its termination.
package execsup

import (
	"context"
	"strings"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/protocol"
	"boa-agent/pkg/boaagent/registry"

	"github.com/sirupsen/logrus"
)

// Emitter is how the supervisor hands outbound packets back to the
// connection's single writer. The orchestrator implements this over its
// outbound queue; supervisors never touch the socket directly.
type Emitter interface {
	Emit(protocol.ServerPacket)
}

// Supervisor drives one exec's lifecycle: verify, start, drain, report.
type Supervisor struct {
	adapter container.Adapter
	logger  *logrus.Logger
}

// New builds a Supervisor over adapter.
func New(adapter container.Adapter, logger *logrus.Logger) *Supervisor {
	return &Supervisor{adapter: adapter, logger: logger}
}

// Run executes fileName inside sess's container and streams its output to
// emitter, per §4.5. It is meant to be invoked from its own goroutine; Run
// itself blocks until the exec completes.
func (s *Supervisor) Run(ctx context.Context, sess *registry.Session, fileName string, emitter Emitter) {
	running, err := s.adapter.InspectRunning(ctx, sess.RuntimeHandle)
	if err != nil || !running {
		emitter.Emit(protocol.NewServerError(protocol.ErrProcessStartFailed, "container is not started"))
		return
	}

	handle, err := s.adapter.Exec(ctx, sess.RuntimeHandle, []string{"python", fileName})
	if err != nil {
		emitter.Emit(protocol.NewServerError(protocol.ErrProcessStartFailed, err.Error()))
		return
	}

	exec := &registry.Exec{ID: sess.ContainerID, ExecID: fileName}
	sess.SetCurrentExec(exec)
	sess.SetState(registry.Executing)

	emitter.Emit(protocol.NewStarted())

	for chunk := range handle.Output() {
		text := strings.ToValidUTF8(string(chunk.Data), "�")

		switch chunk.Kind {
		case container.StdOut:
			emitter.Emit(protocol.NewStdOut(text))
		case container.StdErr:
			emitter.Emit(protocol.NewStdErr(text))
		}
	}

	exitCode, err := handle.ExitCode(ctx)
	if err != nil {
		s.logger.Errorf("exec %s on %s: inspect exit code: %v", fileName, sess.ContainerID, err)
		exitCode = -1
	}

	sess.SetCurrentExec(nil)
	sess.SetState(registry.Running)

	emitter.Emit(protocol.NewFinished(exitCode))
}
