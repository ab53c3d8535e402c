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

package orchestrator

import (
	"context"
	"time"

	"boa-agent/pkg/boaagent/monitor"
	"boa-agent/pkg/boaagent/protocol"
	"boa-agent/pkg/boaagent/registry"
)

// execTimeout bounds how long a single container lifecycle call (create,
// remove, start, stop) may run before its context is cancelled. Execs run
// under context.Background and are not bounded by it; Interrupt/Terminate
// are the only way to end a long-running exec early.
const execTimeout = 24 * time.Hour

// dispatch routes one decoded ClientPacket to its handler. It returns false
// only when the connection must be torn down (an Interrupt/Terminate
// signal failure, per §4.6).
func (c *Connection) dispatch(pkt protocol.ClientPacket) bool {
	switch pkt.Type {
	case protocol.TypeProcessOpen:
		c.handleProcessOpen()
	case protocol.TypeProcessClose:
		c.handleProcessClose(pkt.ProcessClose.ContainerID)
	case protocol.TypeProcessControlSignal:
		return c.handleControlSignal(pkt.ProcessControlSignal.ContainerID, pkt.ProcessControlSignal.ControlSignal)
	case protocol.TypeUploadStart:
		if out := c.coordinator.Start(pkt.UploadStart.ContainerID, pkt.UploadStart.Path, pkt.UploadStart.Size); out != nil {
			c.enqueuePacket(*out)
		}
	case protocol.TypeUploadFinish:
		c.coordinator.Finish()
	}

	return true
}

// handleProcessOpen creates a new sandbox container and registers a
// session for it (§4.2, §4.6).
func (c *Connection) handleProcessOpen() {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	containerID, handle, err := c.adapter.Create(ctx, c.containerPrefix)
	if err != nil {
		monitor.MetricsContainerCreateErrors.WithLabelValues().Inc()
		c.enqueuePacket(protocol.NewServerError(protocol.ErrProcessStartFailed, err.Error()))

		return
	}

	sess := registry.NewSession(containerID, handle)
	if err := c.registry.Insert(containerID, sess); err != nil {
		c.enqueuePacket(protocol.NewServerError(protocol.ErrProcessStartFailed, err.Error()))
		return
	}

	monitor.MetricsActiveSessions.Inc()
	c.enqueuePacket(protocol.NewProcessOpenResult(containerID))
}

// handleProcessClose removes a session and tears down its container.
// Unknown container ids never break the connection (§4.6).
func (c *Connection) handleProcessClose(containerID string) {
	sess, ok := c.registry.Remove(containerID)
	if !ok {
		c.enqueuePacket(protocol.NewServerError(protocol.ErrInvalidContainerId, "no such container: "+containerID))
		return
	}

	monitor.MetricsActiveSessions.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	success := c.adapter.Remove(ctx, sess.RuntimeHandle, true) == nil

	c.enqueuePacket(protocol.NewProcessCloseResult(success))
}

// handleControlSignal dispatches one ProcessControlSignal. It returns false
// only when an Interrupt/Terminate signal failed to reach the runtime,
// which per §4.6 ends the connection.
func (c *Connection) handleControlSignal(containerID string, signal protocol.ControlSignal) bool {
	sess, ok := c.registry.Get(containerID)
	if !ok {
		c.enqueuePacket(protocol.NewServerError(protocol.ErrInvalidContainerId, "no such container: "+containerID))
		return true
	}

	switch signal.Kind {
	case protocol.SignalStart:
		go c.runStart(sess)
	case protocol.SignalExec:
		go c.supervisor.Run(context.Background(), sess, signal.FileName, c)
	case protocol.SignalInterrupt:
		return c.runStop(sess, "SIGINT")
	case protocol.SignalTerminate:
		return c.runStop(sess, "SIGTERM")
	}

	return true
}

// runStart starts sess's container and emits ProcessEvent::Started exactly
// once, after the runtime confirms the container is actually running.
func (c *Connection) runStart(sess *registry.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	if err := c.adapter.Start(ctx, sess.RuntimeHandle); err != nil {
		c.Emit(protocol.NewServerError(protocol.ErrProcessStartFailed, err.Error()))
		return
	}

	sess.SetState(registry.Running)
	c.enqueuePacket(protocol.NewStarted())
}

// runStop synchronously signals sess's container. A failure here is fatal
// to the connection: there is no way to recover a signal that the runtime
// refused to deliver (§4.6).
func (c *Connection) runStop(sess *registry.Session, signal string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), execTimeout)
	defer cancel()

	if err := c.adapter.Stop(ctx, sess.RuntimeHandle, signal); err != nil {
		c.logger.Errorf("signal %s to %s failed: %v", signal, sess.ContainerID, err)
		return false
	}

	return true
}
