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

// Package upload tracks the single in-flight upload on a connection:
// UploadStart allocates a scratch file, binary frames append to it,
// UploadFinish tars it up and pushes it into the container off the
// protocol's critical path.
package upload

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"

	"boa-agent/pkg/boaagent/container"
	"boa-agent/pkg/boaagent/monitor"
	"boa-agent/pkg/boaagent/protocol"
	"boa-agent/pkg/boaagent/registry"

	"github.com/sirupsen/logrus"
)

// destinationPath is the fixed in-container directory uploads are unpacked
// into.
const destinationPath = "/src"

// pending describes the single upload currently in flight on a connection.
type pending struct {
	containerID string
	fileName    string
	expected    uint64
	received    uint64
	scratch     *os.File
}

// Coordinator implements the Idle/Pending state machine of §4.4. It is
// connection-local: construct one per connection, never shared.
type Coordinator struct {
	registry *registry.Registry
	adapter  container.Adapter
	logger   *logrus.Logger

	pending *pending
}

// New builds a Coordinator for one connection.
func New(reg *registry.Registry, adapter container.Adapter, logger *logrus.Logger) *Coordinator {
	return &Coordinator{registry: reg, adapter: adapter, logger: logger}
}

// Start handles an UploadStart packet. It returns a ServerError packet to
// emit, or nil if the transition succeeded silently.
func (c *Coordinator) Start(containerID, fileName string, size uint64) *protocol.ServerPacket {
	if c.pending != nil {
		pkt := protocol.NewServerError(protocol.ErrUploadAlreadyInProgress, "upload already in progress")
		return &pkt
	}

	if _, ok := c.registry.Get(containerID); !ok {
		pkt := protocol.NewServerError(protocol.ErrInvalidContainerId, "no such container: "+containerID)
		return &pkt
	}

	scratch, err := os.CreateTemp("", "boa-upload-*")
	if err != nil {
		pkt := protocol.NewServerError(protocol.ErrTempFileCreationFailed, err.Error())
		return &pkt
	}

	c.pending = &pending{
		containerID: containerID,
		fileName:    fileName,
		expected:    size,
		scratch:     scratch,
	}

	return nil
}

// Binary handles one binary frame. Returns a ServerError packet to emit, or
// nil on success.
func (c *Coordinator) Binary(data []byte) *protocol.ServerPacket {
	if c.pending == nil {
		pkt := protocol.NewServerError(protocol.ErrUnexpectedBinaryFrame, "binary frame without a pending upload")
		return &pkt
	}

	if _, err := c.pending.scratch.Write(data); err != nil {
		c.discard()

		pkt := protocol.NewServerError(protocol.ErrUploadFailed, err.Error())
		return &pkt
	}

	c.pending.received = saturatingAdd(c.pending.received, uint64(len(data)))
	monitor.MetricsUploadBytes.WithLabelValues().Add(float64(len(data)))

	return nil
}

// saturatingAdd adds b to a without overflowing past the uint64 max.
func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}

	return sum
}

// discard drops the pending upload's scratch file and resets to Idle.
func (c *Coordinator) discard() {
	if c.pending == nil {
		return
	}

	name := c.pending.scratch.Name()
	c.pending.scratch.Close()
	os.Remove(name)
	c.pending = nil
}

// Finish handles an UploadFinish packet. It captures the pending upload's
// metadata, transitions back to Idle, and finalizes the upload
// asynchronously: no UploadResult frame exists, so failures only surface as
// log output (§4.4, §9 open question).
func (c *Coordinator) Finish() {
	p := c.pending
	c.pending = nil

	if p == nil {
		return
	}

	go c.finalize(p)
}

// finalize builds a one-entry tar archive from the scratch file and pushes
// it into the container, then deletes the scratch file regardless of
// outcome.
func (c *Coordinator) finalize(p *pending) {
	defer func() {
		name := p.scratch.Name()
		p.scratch.Close()
		os.Remove(name)
	}()

	sess, ok := c.registry.Get(p.containerID)
	if !ok {
		c.logger.Errorf("upload finalize: container %s no longer registered", p.containerID)
		monitor.MetricsUploadsTotal.WithLabelValues("failed").Inc()

		return
	}

	if _, err := p.scratch.Seek(0, 0); err != nil {
		c.logger.Errorf("upload finalize: seek scratch file: %v", err)
		monitor.MetricsUploadsTotal.WithLabelValues("failed").Inc()

		return
	}

	tarBytes, err := buildTar(p.fileName, p.scratch)
	if err != nil {
		c.logger.Errorf("upload finalize: build tar: %v", err)
		monitor.MetricsUploadsTotal.WithLabelValues("failed").Inc()

		return
	}

	if err := c.adapter.UploadTar(context.Background(), sess.RuntimeHandle, destinationPath, tarBytes); err != nil {
		c.logger.Errorf("upload finalize: upload tar for %s: %v", p.containerID, err)
		monitor.MetricsUploadsTotal.WithLabelValues("failed").Inc()

		return
	}

	monitor.MetricsUploadsTotal.WithLabelValues("success").Inc()
}

// buildTar wraps the scratch file's contents in a single-entry tar archive
// named fileName.
func buildTar(fileName string, scratch *os.File) ([]byte, error) {
	info, err := scratch.Stat()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	tw := tar.NewWriter(&buf)

	hdr := &tar.Header{
		Name: fileName,
		Mode: 0o644,
		Size: info.Size(),
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}

	if _, err := io.Copy(tw, scratch); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
