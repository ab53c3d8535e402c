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

// Package orchestrator is the per-connection state machine described in
// §4.6: it reads frames off the websocket, dispatches them to the
// registry/adapter/coordinator/supervisor, and serializes everything sent
// back through a single writer goroutine.
package orchestrator

import (
	"context"
	"time"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/execsup"
	"boa-agent/pkg/boaagent/monitor"
	"boa-agent/pkg/boaagent/protocol"
	"boa-agent/pkg/boaagent/registry"
	"boa-agent/pkg/boaagent/upload"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// outboundBacklog is the capacity of the outbound channel. The channel is
// bounded: once this many frames are queued, a producer blocks until the
// writer goroutine drains one.
const outboundBacklog = 32

// writeWait bounds how long a single outbound frame may take to write
// before the connection is considered dead.
const writeWait = 10 * time.Second

// outboundMessage is the tagged union queued for the writer goroutine.
type outboundMessage struct {
	packet *protocol.ServerPacket
	pong   []byte
}

// Connection is one /ws connection's orchestrator. Construct one per
// accepted connection and call Run.
type Connection struct {
	conn            *websocket.Conn
	registry        *registry.Registry
	adapter         container.Adapter
	coordinator     *upload.Coordinator
	supervisor      *execsup.Supervisor
	containerPrefix string
	logger          *logrus.Entry

	outbound chan outboundMessage
}

// New builds a Connection orchestrator over an already-upgraded websocket
// connection.
func New(conn *websocket.Conn, adapter container.Adapter, containerPrefix string, logger *logrus.Entry) *Connection {
	reg := registry.New()

	c := &Connection{
		conn:            conn,
		registry:        reg,
		adapter:         adapter,
		containerPrefix: containerPrefix,
		logger:          logger,
		outbound:        make(chan outboundMessage, outboundBacklog),
	}

	c.coordinator = upload.New(reg, adapter, logger.Logger)
	c.supervisor = execsup.New(adapter, logger.Logger)

	return c
}

// Emit implements execsup.Emitter: supervisors hand packets back through
// the connection's single outbound queue, never touching the socket
// directly.
func (c *Connection) Emit(pkt protocol.ServerPacket) {
	recordOutcome(pkt)
	c.enqueuePacket(pkt)
}

// recordOutcome updates the exec/start failure counters implied by an
// outbound packet. It is a no-op for everything else.
func recordOutcome(pkt protocol.ServerPacket) {
	switch pkt.Type {
	case protocol.TypeServerError:
		if pkt.ServerError.Err == protocol.ErrProcessStartFailed {
			monitor.MetricsProcessStartErrors.WithLabelValues().Inc()
		}
	case protocol.TypeProcessEvent:
		if pkt.ProcessEvent.Kind == protocol.EventFinished {
			outcome := "success"
			if pkt.ProcessEvent.ExitCode != 0 {
				outcome = "nonzero_exit"
			}

			monitor.MetricsExecsTotal.WithLabelValues(outcome).Inc()
		}
	}
}

// enqueuePacket queues a ServerPacket for the writer goroutine. The send
// blocks while the outbound channel is full. A send after teardown has
// closed the channel panics inside the send; the panic is recovered and the
// packet is dropped.
func (c *Connection) enqueuePacket(pkt protocol.ServerPacket) {
	defer func() { recover() }()
	c.outbound <- outboundMessage{packet: &pkt}
}

func (c *Connection) enqueuePong(payload []byte) {
	defer func() { recover() }()
	c.outbound <- outboundMessage{pong: payload}
}

// Run drives the connection until the client disconnects or a fatal
// protocol error occurs. It blocks until teardown is complete.
func (c *Connection) Run() {
	monitor.MetricsActiveConnections.Inc()
	defer monitor.MetricsActiveConnections.Dec()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.conn.SetPingHandler(func(appData string) error {
		c.enqueuePong([]byte(appData))
		return nil
	})

	c.readLoop()

	close(c.outbound)
	<-writerDone

	c.reclaimSessions()
}

// writeLoop is the connection's single writer: every outbound frame is
// serialized through this goroutine, guaranteeing that frame ordering on
// the wire matches enqueue order (§5 ordering guarantees).
func (c *Connection) writeLoop() {
	for msg := range c.outbound {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))

		var err error

		switch {
		case msg.packet != nil:
			data, encErr := protocol.EncodeServer(*msg.packet)
			if encErr != nil {
				c.logger.Errorf("encode outbound packet: %v", encErr)
				continue
			}

			err = c.conn.WriteMessage(websocket.TextMessage, data)
		case msg.pong != nil:
			err = c.conn.WriteMessage(websocket.PongMessage, msg.pong)
		}

		if err != nil {
			c.logger.Warnf("write to client failed: %v", err)
			return
		}
	}
}

// readLoop reads inbound frames and dispatches them. It returns once the
// client disconnects or a fatal protocol error (InvalidJson, or an
// Interrupt/Terminate signal failure) breaks the connection.
func (c *Connection) readLoop() {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if !c.handleText(data) {
				return
			}
		case websocket.BinaryMessage:
			if pkt := c.coordinator.Binary(data); pkt != nil {
				c.enqueuePacket(*pkt)
			}
		case websocket.CloseMessage:
			return
		}
	}
}

// handleText decodes and dispatches one text frame. It returns false if the
// connection should be torn down.
func (c *Connection) handleText(data []byte) bool {
	pkt, err := protocol.DecodeClient(data)
	if err != nil {
		c.enqueuePacket(protocol.NewServerError(protocol.ErrInvalidJson, err.Error()))
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, "invalid json"),
			time.Now().Add(writeWait))

		return false
	}

	return c.dispatch(pkt)
}

// reclaimSessions best-effort removes every session still owned by this
// connection once the read loop has exited.
func (c *Connection) reclaimSessions() {
	for _, sess := range c.registry.Drain() {
		monitor.MetricsActiveSessions.Dec()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

		if err := c.adapter.Remove(ctx, sess.RuntimeHandle, true); err != nil {
			c.logger.Warnf("best-effort remove of %s failed: %v", sess.ContainerID, err)
		}

		cancel()
	}
}
