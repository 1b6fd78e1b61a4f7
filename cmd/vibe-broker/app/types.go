// Copyright The Vibe Broker Authors.
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

package app

// TLSConfig carries the broker's external-facing TLS material: server
// certificate and key only, no mutual-TLS verification, since the
// broker authenticates callers at the application layer instead.
type TLSConfig struct {
	TLSVerify bool   `toml:"tls_verify"`
	TLSCert   string `toml:"tls_cert"`
	TLSKey    string `toml:"tls_key"`
}

// RuntimeConfig selects and configures the container runtime backend.
type RuntimeConfig struct {
	// Backend is "docker" or "containerd".
	Backend          string `toml:"backend"`
	Endpoint         string `toml:"endpoint"`
	DockerAPIVersion string `toml:"docker_api_version"`
	ContainerdNS     string `toml:"containerd_namespace"`
}

// PortRangeConfig is the host port range sessions are placed into,
// the environment section default [17000, 18000).
type PortRangeConfig struct {
	Low  int `toml:"low"`
	High int `toml:"high"`
}

// Server is the broker process's top-level lifecycle.
type Server interface {
	Start(opt *Option) error
}

// brokerServer is the sole implementation of Server; NewServer exists so
// runServer's setup logic can be swapped in tests without touching
// NewCommand's wiring.
type brokerServer struct{}

// NewServer returns the production Server implementation.
func NewServer() Server {
	return &brokerServer{}
}

func (*brokerServer) Start(opt *Option) error {
	return runServer(opt)
}
