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
	"bufio"
	"encoding/binary"
	"net"
	"testing"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFrame writes one Docker-multiplexed stream frame to w.
func writeFrame(t *testing.T, w net.Conn, streamType byte, payload []byte) {
	t.Helper()

	header := make([]byte, streamHeaderLen)
	header[streamTypeIndex] = streamType
	binary.BigEndian.PutUint32(header[streamSizeIndex:streamSizeIndex+4], uint32(len(payload)))

	_, err := w.Write(header)
	require.NoError(t, err)
	_, err = w.Write(payload)
	require.NoError(t, err)
}

func TestDockerExecHandleDemuxSplitsStdoutAndStderr(t *testing.T) {
	client, server := net.Pipe()

	handle := &dockerExecHandle{
		execID: "exec-1",
		attach: dockertypes.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)},
		output: make(chan OutputChunk, 64),
	}

	go handle.demux()

	go func() {
		writeFrame(t, server, dockerStdout, []byte("hello from container\n"))
		writeFrame(t, server, dockerStderr, []byte("uh oh\n"))
		server.Close()
	}()

	var chunks []OutputChunk

	timeout := time.After(2 * time.Second)
	for {
		select {
		case chunk, ok := <-handle.Output():
			if !ok {
				assert.Len(t, chunks, 2)
				assert.Equal(t, StdOut, chunks[0].Kind)
				assert.Equal(t, "hello from container\n", string(chunks[0].Data))
				assert.Equal(t, StdErr, chunks[1].Kind)
				assert.Equal(t, "uh oh\n", string(chunks[1].Data))
				return
			}
			chunks = append(chunks, chunk)
		case <-timeout:
			t.Fatal("timed out waiting for demux output")
		}
	}
}

func TestDockerExecHandleDemuxEndsOnClose(t *testing.T) {
	client, server := net.Pipe()
	server.Close()

	handle := &dockerExecHandle{
		execID: "exec-1",
		attach: dockertypes.HijackedResponse{Conn: client, Reader: bufio.NewReader(client)},
		output: make(chan OutputChunk, 4),
	}

	done := make(chan struct{})
	go func() {
		handle.demux()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("demux did not exit after stream close")
	}

	_, ok := <-handle.Output()
	assert.False(t, ok)
}
