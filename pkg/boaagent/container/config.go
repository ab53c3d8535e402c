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

import dockerclient "github.com/docker/docker/client"

const (
	// sandboxImage is the compiled-in image every sandbox container is
	// created from.
	sandboxImage = "python:3.11-slim"

	// workdir is the fixed working directory and upload destination
	// inside every sandbox container.
	workdir = "/src"
)

// idleCmd keeps a freshly created container alive after Start until it is
// explicitly removed.
var idleCmd = []string{"tail", "-f", "/dev/null"}

// Config names the Docker endpoint this agent talks to.
type Config struct {
	// Endpoint is the Docker daemon's API endpoint address.
	Endpoint string `toml:"docker_endpoint"`

	// APIVersion pins the Docker API version to negotiate.
	APIVersion string `toml:"docker_api_version"`
}

// NewDockerClient creates a Docker API client for the given configuration.
func NewDockerClient(cfg Config) (dockerclient.CommonAPIClient, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(cfg.Endpoint),
		dockerclient.WithVersion(cfg.APIVersion),
	)
	if err != nil {
		return nil, err
	}

	return cli, nil
}
