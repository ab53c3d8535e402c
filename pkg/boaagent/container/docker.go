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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/google/uuid"
)

const (
	// Docker multiplexes attached, non-TTY streams behind an 8-byte
	// header: 1 byte stream type, 3 reserved, 4 byte big-endian length.
	streamHeaderLen = 8
	streamTypeIndex = 0
	streamSizeIndex = 4
	readChunkSize   = 4096

	dockerStdin  = 0
	dockerStdout = 1
	dockerStderr = 2
)

// dockerAdapter implements Adapter against a real Docker daemon.
type dockerAdapter struct {
	client dockerclient.CommonAPIClient
}

// NewDockerAdapter builds an Adapter backed by cli.
func NewDockerAdapter(cli dockerclient.CommonAPIClient) Adapter {
	return &dockerAdapter{client: cli}
}

func (a *dockerAdapter) Create(ctx context.Context, prefix string) (string, string, error) {
	containerID := fmt.Sprintf("%s-%s", prefix, uuid.New().String())

	cfg := &container.Config{
		Image:        sandboxImage,
		Cmd:          idleCmd,
		WorkingDir:   workdir,
		Tty:          false,
		AttachStdin:  false,
		AttachStdout: true,
		AttachStderr: true,
	}

	resp, err := a.client.ContainerCreate(ctx, cfg, &container.HostConfig{}, &network.NetworkingConfig{}, nil, containerID)
	if err != nil {
		return "", "", newRuntimeError("create container", containerID, err)
	}

	return containerID, resp.ID, nil
}

func (a *dockerAdapter) Start(ctx context.Context, handle string) error {
	if err := a.client.ContainerStart(ctx, handle, container.StartOptions{}); err != nil {
		return newRuntimeError("start container", handle, err)
	}

	return nil
}

func (a *dockerAdapter) UploadTar(ctx context.Context, handle string, path string, tarBytes []byte) error {
	err := a.client.CopyToContainer(ctx, handle, path, bytes.NewReader(tarBytes), dockertypes.CopyToContainerOptions{})
	if err != nil {
		return newRuntimeError("upload tar", handle, err)
	}

	return nil
}

func (a *dockerAdapter) Exec(ctx context.Context, handle string, argv []string) (ExecHandle, error) {
	createResp, err := a.client.ContainerExecCreate(ctx, handle, dockertypes.ExecConfig{
		Cmd:          argv,
		Tty:          false,
		AttachStdin:  false,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, newRuntimeError("create exec", handle, err)
	}

	attachResp, err := a.client.ContainerExecAttach(ctx, createResp.ID, dockertypes.ExecStartCheck{Tty: false})
	if err != nil {
		return nil, newRuntimeError("start exec", handle, err)
	}

	h := &dockerExecHandle{
		client: a.client,
		execID: createResp.ID,
		attach: attachResp,
		output: make(chan OutputChunk, 64),
	}

	go h.demux()

	return h, nil
}

func (a *dockerAdapter) Stop(ctx context.Context, handle string, signal string) error {
	if err := a.client.ContainerKill(ctx, handle, signal); err != nil {
		return newRuntimeError("signal container", handle, err)
	}

	statusCh, errCh := a.client.ContainerWait(ctx, handle, container.WaitConditionNotRunning)

	select {
	case err := <-errCh:
		if err != nil {
			return newRuntimeError("wait container", handle, err)
		}
	case <-statusCh:
	}

	return nil
}

func (a *dockerAdapter) Remove(ctx context.Context, handle string, force bool) error {
	if err := a.client.ContainerRemove(ctx, handle, container.RemoveOptions{Force: force}); err != nil {
		return newRuntimeError("remove container", handle, err)
	}

	return nil
}

func (a *dockerAdapter) InspectRunning(ctx context.Context, handle string) (bool, error) {
	inspect, err := a.client.ContainerInspect(ctx, handle)
	if err != nil {
		return false, newRuntimeError("inspect container", handle, err)
	}

	return inspect.State != nil && inspect.State.Running, nil
}

// dockerExecHandle demultiplexes the attached exec's stream into typed
// output chunks and reports the exit code once the stream has ended.
type dockerExecHandle struct {
	client dockerclient.CommonAPIClient
	execID string
	attach dockertypes.HijackedResponse
	output chan OutputChunk
}

func (h *dockerExecHandle) Output() <-chan OutputChunk {
	return h.output
}

// demux reads Docker's multiplexed stdout/stderr frames off the attached
// connection until it closes, then closes the output channel.
func (h *dockerExecHandle) demux() {
	defer close(h.output)
	defer h.attach.Close()

	reader := h.attach.Reader

	for {
		header, err := reader.Peek(streamHeaderLen)
		if err != nil {
			return
		}

		if _, err := reader.Discard(streamHeaderLen); err != nil {
			return
		}

		streamType := header[streamTypeIndex]
		frameSize := int(binary.BigEndian.Uint32(header[streamSizeIndex : streamSizeIndex+4]))

		remaining := frameSize
		for remaining > 0 {
			n := remaining
			if n > readChunkSize {
				n = readChunkSize
			}

			buf := make([]byte, n)

			read, err := io.ReadFull(reader, buf)
			if read > 0 {
				kind := Other
				switch streamType {
				case dockerStdout:
					kind = StdOut
				case dockerStderr:
					kind = StdErr
				}

				if kind != Other {
					h.output <- OutputChunk{Kind: kind, Data: buf[:read]}
				}
			}

			remaining -= read

			if err != nil {
				return
			}
		}
	}
}

func (h *dockerExecHandle) ExitCode(ctx context.Context) (int64, error) {
	inspect, err := h.client.ContainerExecInspect(ctx, h.execID)
	if err != nil {
		return -1, newRuntimeError("inspect exec", h.execID, err)
	}

	// A still-running exec has no exit status yet.
	if inspect.Running {
		return -1, nil
	}

	return int64(inspect.ExitCode), nil
}
