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

//go:build linux
// +build linux

// Package e2e drives a real Docker daemon through the full boa-agent /ws
// protocol: ProcessOpen, upload, Start, Exec, and ProcessClose, mirroring
// scenario S1 of the specification against an actual sandbox container
// rather than a fake adapter. It skips instead of failing when no Docker
// daemon is reachable.
package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/orchestrator"
	"boa-agent/pkg/boaagent/protocol"

	"github.com/docker/docker/api/types/image"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func discardEntry() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard

	return logrus.NewEntry(l)
}

// newTestServer upgrades every request into a fresh orchestrator.Connection
// backed by a real Docker adapter, mirroring cmd/boa-agent/app/server.go's
// /ws handler.
func newTestServer(adapter container.Adapter) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		orchestrator.New(conn, adapter, "boa-e2e", discardEntry()).Run()
	}))
}

func sendClient(t *testing.T, conn *websocket.Conn, typ protocol.ClientPacketType, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	require.NoError(t, err)

	typJSON, err := json.Marshal(typ)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]json.RawMessage{"type": typJSON, "data": payload})
	require.NoError(t, err)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readPacket(t *testing.T, conn *websocket.Conn) protocol.ServerPacket {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var env struct {
		Type protocol.ServerPacketType `json:"type"`
		Data json.RawMessage           `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &env))

	pkt := protocol.ServerPacket{Type: env.Type}

	switch env.Type {
	case protocol.TypeProcessOpenResult:
		require.NoError(t, json.Unmarshal(env.Data, &pkt.ProcessOpenResult))
	case protocol.TypeProcessCloseResult:
		require.NoError(t, json.Unmarshal(env.Data, &pkt.ProcessCloseResult))
	case protocol.TypeProcessOutput:
		require.NoError(t, json.Unmarshal(env.Data, &pkt.ProcessOutput))
	case protocol.TypeProcessEvent:
		require.NoError(t, json.Unmarshal(env.Data, &pkt.ProcessEvent))
	case protocol.TypeServerError:
		require.NoError(t, json.Unmarshal(env.Data, &pkt.ServerError))
	}

	return pkt
}

// TestHappyPathAgainstRealDocker exercises scenario S1 end to end: open a
// sandbox, upload a one-line script, start the container, exec it, and
// observe Started/StdOut/Finished in order before tearing it down.
func TestHappyPathAgainstRealDocker(t *testing.T) {
	ctx := context.Background()

	cli, err := dialDocker(ctx)
	if err != nil {
		t.Skipf("no reachable docker daemon, skipping e2e test: %v", err)
	}

	if _, err := cli.ImagePull(ctx, "python:3.11-slim", image.PullOptions{}); err != nil {
		t.Skipf("could not pull sandbox image, skipping e2e test: %v", err)
	}

	adapter := container.NewDockerAdapter(cli)
	srv := newTestServer(adapter)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	sendClient(t, client, protocol.TypeProcessOpen, struct{}{})
	opened := readPacket(t, client)
	require.Equal(t, protocol.TypeProcessOpenResult, opened.Type)
	containerID := opened.ProcessOpenResult.ContainerID
	require.NotEmpty(t, containerID)

	script := []byte("print('hello from container')\n")

	sendClient(t, client, protocol.TypeUploadStart, protocol.UploadStartData{
		ContainerID: containerID,
		Path:        "main.py",
		Size:        uint64(len(script)),
	})
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, script))
	sendClient(t, client, protocol.TypeUploadFinish, protocol.UploadFinishData{ContainerID: containerID})

	// the upload finalizes off the protocol's critical path (§4.4); give it
	// a moment to land before starting the container.
	time.Sleep(2 * time.Second)

	sendClient(t, client, protocol.TypeProcessControlSignal, protocol.ProcessControlSignalData{
		ContainerID:   containerID,
		ControlSignal: protocol.ControlSignal{Kind: protocol.SignalStart},
	})
	started := readPacket(t, client)
	require.Equal(t, protocol.TypeProcessEvent, started.Type)
	require.Equal(t, protocol.EventStarted, started.ProcessEvent.Kind)

	sendClient(t, client, protocol.TypeProcessControlSignal, protocol.ProcessControlSignalData{
		ContainerID:   containerID,
		ControlSignal: protocol.ControlSignal{Kind: protocol.SignalExec, FileName: "main.py"},
	})

	execStarted := readPacket(t, client)
	require.Equal(t, protocol.TypeProcessEvent, execStarted.Type)
	require.Equal(t, protocol.EventStarted, execStarted.ProcessEvent.Kind)

	var stdout strings.Builder

	for {
		pkt := readPacket(t, client)
		if pkt.Type == protocol.TypeProcessEvent && pkt.ProcessEvent.Kind == protocol.EventFinished {
			require.Equal(t, int64(0), pkt.ProcessEvent.ExitCode)
			break
		}

		require.Equal(t, protocol.TypeProcessOutput, pkt.Type)
		if pkt.ProcessOutput.Kind == protocol.OutputStdOut {
			stdout.WriteString(pkt.ProcessOutput.Text)
		}
	}

	require.Contains(t, stdout.String(), "hello from container")

	sendClient(t, client, protocol.TypeProcessClose, protocol.ProcessCloseData{ContainerID: containerID})
	closed := readPacket(t, client)
	require.Equal(t, protocol.TypeProcessCloseResult, closed.Type)
	require.True(t, closed.ProcessCloseResult.Success)
}
