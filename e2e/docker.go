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

package e2e

import (
	"context"
	"time"

	"boa-agent/pkg/boaagent/container"

	dockerclient "github.com/docker/docker/client"
)

const dockerAPIVersion = "1.41"

// dialDocker builds a Docker client against the local daemon socket and
// pings it, returning an error (never panicking) if no daemon is reachable
// so the e2e test can skip cleanly in environments without Docker.
func dialDocker(ctx context.Context) (dockerclient.CommonAPIClient, error) {
	cli, err := container.NewDockerClient(container.Config{
		Endpoint:   "unix:///var/run/docker.sock",
		APIVersion: dockerAPIVersion,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if _, err := cli.Ping(pingCtx); err != nil {
		return nil, err
	}

	return cli, nil
}
