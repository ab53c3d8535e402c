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

package execsup

import (
	"context"
	"io"
	"sync"
	"testing"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/protocol"
	"boa-agent/pkg/boaagent/registry"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEmitter struct {
	mu      sync.Mutex
	packets []protocol.ServerPacket
}

func (r *recordingEmitter) Emit(pkt protocol.ServerPacket) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.packets = append(r.packets, pkt)
}

type fakeExecHandle struct {
	out      chan container.OutputChunk
	exitCode int64
	exitErr  error
}

func (f *fakeExecHandle) Output() <-chan container.OutputChunk { return f.out }
func (f *fakeExecHandle) ExitCode(ctx context.Context) (int64, error) {
	return f.exitCode, f.exitErr
}

type fakeAdapter struct {
	running    bool
	runningErr error
	handle     container.ExecHandle
	execErr    error
	gotArgv    []string
}

func (f *fakeAdapter) Create(ctx context.Context, prefix string) (string, string, error) {
	return "", "", nil
}
func (f *fakeAdapter) Start(ctx context.Context, handle string) error { return nil }
func (f *fakeAdapter) UploadTar(ctx context.Context, handle, path string, tarBytes []byte) error {
	return nil
}
func (f *fakeAdapter) Exec(ctx context.Context, handle string, argv []string) (container.ExecHandle, error) {
	f.gotArgv = argv
	return f.handle, f.execErr
}
func (f *fakeAdapter) Stop(ctx context.Context, handle, signal string) error       { return nil }
func (f *fakeAdapter) Remove(ctx context.Context, handle string, force bool) error { return nil }
func (f *fakeAdapter) InspectRunning(ctx context.Context, handle string) (bool, error) {
	return f.running, f.runningErr
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard

	return l
}

func TestRunAgainstNotStartedContainerEmitsProcessStartFailed(t *testing.T) {
	adapter := &fakeAdapter{running: false}
	sup := New(adapter, discardLogger())
	sess := registry.NewSession("boa-1", "handle-1")
	emitter := &recordingEmitter{}

	sup.Run(context.Background(), sess, "main.py", emitter)

	require.Len(t, emitter.packets, 1)
	pkt := emitter.packets[0]
	assert.Equal(t, protocol.TypeServerError, pkt.Type)
	assert.Equal(t, protocol.ErrProcessStartFailed, pkt.ServerError.Err)
	assert.Contains(t, pkt.ServerError.Message, "not started")
}

func TestRunHappyPathOrdersOutputBeforeFinished(t *testing.T) {
	out := make(chan container.OutputChunk, 4)
	out <- container.OutputChunk{Kind: container.StdOut, Data: []byte("hello from container\n")}
	close(out)

	handle := &fakeExecHandle{out: out, exitCode: 0}
	adapter := &fakeAdapter{running: true, handle: handle}
	sup := New(adapter, discardLogger())
	sess := registry.NewSession("boa-1", "handle-1")
	sess.SetState(registry.Running)
	emitter := &recordingEmitter{}

	sup.Run(context.Background(), sess, "main.py", emitter)

	require.Len(t, emitter.packets, 3)
	assert.Equal(t, protocol.EventStarted, emitter.packets[0].ProcessEvent.Kind)
	assert.Equal(t, protocol.OutputStdOut, emitter.packets[1].ProcessOutput.Kind)
	assert.Equal(t, "hello from container\n", emitter.packets[1].ProcessOutput.Text)
	assert.Equal(t, protocol.EventFinished, emitter.packets[2].ProcessEvent.Kind)
	assert.Equal(t, int64(0), emitter.packets[2].ProcessEvent.ExitCode)

	assert.Equal(t, []string{"python", "main.py"}, adapter.gotArgv)
	assert.Nil(t, sess.CurrentExec())
	assert.Equal(t, registry.Running, sess.State())
}

func TestRunReportsMinusOneWhenExitCodeUnavailable(t *testing.T) {
	out := make(chan container.OutputChunk)
	close(out)

	handle := &fakeExecHandle{out: out, exitCode: -1, exitErr: assertErr{}}
	adapter := &fakeAdapter{running: true, handle: handle}
	sup := New(adapter, discardLogger())
	sess := registry.NewSession("boa-1", "handle-1")
	emitter := &recordingEmitter{}

	sup.Run(context.Background(), sess, "main.py", emitter)

	last := emitter.packets[len(emitter.packets)-1]
	assert.Equal(t, protocol.EventFinished, last.ProcessEvent.Kind)
	assert.Equal(t, int64(-1), last.ProcessEvent.ExitCode)
}

type assertErr struct{}

func (assertErr) Error() string { return "exit status unavailable" }
