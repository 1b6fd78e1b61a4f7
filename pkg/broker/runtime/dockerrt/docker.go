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

// Package dockerrt implements runtime.ContainerRuntime against the Docker
// Engine API.
package dockerrt

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	dockerfilters "github.com/docker/docker/api/types/filters"
	dockermount "github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("dockerrt")

// Runtime wraps the Docker API client the way
// pkg/trust-tunnel-agent/session/docker.go does, generalized to full
// container create/start/stop/remove/inspect/list instead of exec-only.
type Runtime struct {
	client dockerclient.CommonAPIClient
}

// New creates a Docker client bound to endpoint/apiVersion, following
// sessionutil.CreateDockerClient.
func New(endpoint, apiVersion string) (*Runtime, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.WithHost(endpoint),
		dockerclient.WithVersion(apiVersion),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &Runtime{client: cli}, nil
}

// NewFromClient wraps an already-constructed client, useful for tests with
// a fake CommonAPIClient.
func NewFromClient(cli dockerclient.CommonAPIClient) *Runtime {
	return &Runtime{client: cli}
}

func (r *Runtime) Create(ctx context.Context, spec runtime.CreateSpec) (string, error) {
	exposedPorts := nat.PortSet{}
	portBindings := nat.PortMap{}

	for _, p := range spec.Ports {
		containerPort := nat.Port(fmt.Sprintf("%d/tcp", p.ContainerPort))
		exposedPorts[containerPort] = struct{}{}

		hostIP := p.HostIP
		if hostIP == "" {
			hostIP = "127.0.0.1"
		}

		portBindings[containerPort] = []nat.PortBinding{
			{HostIP: hostIP, HostPort: strconv.Itoa(p.HostPort)},
		}
	}

	contConfig := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		ExposedPorts: exposedPorts,
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		ExtraHosts:   spec.ExtraHosts,
		Resources: container.Resources{
			Memory: spec.MemoryBytes,
		},
	}

	if spec.CPUQuota > 0 {
		hostConfig.Resources.CPUPeriod = 100000
		hostConfig.Resources.CPUQuota = spec.CPUQuota
	}

	if spec.RestartPolicy != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{Name: container.RestartPolicyMode(spec.RestartPolicy)}
	}

	if spec.BindMountSource != "" {
		hostConfig.Mounts = []dockermount.Mount{{
			Type:   dockermount.TypeBind,
			Source: spec.BindMountSource,
			Target: spec.BindMountTarget,
		}}
	}

	resp, err := r.client.ContainerCreate(ctx, contConfig, hostConfig, &network.NetworkingConfig{}, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("container create: %w", err)
	}

	return resp.ID, nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	return r.client.ContainerStart(ctx, id, container.StartOptions{})
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	return r.client.ContainerStop(ctx, id, container.StopOptions{})
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	return r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

func (r *Runtime) Inspect(ctx context.Context, id string) (runtime.ContainerInfo, error) {
	resp, err := r.client.ContainerInspect(ctx, id)
	if err != nil {
		return runtime.ContainerInfo{}, err
	}

	return toContainerInfo(resp.ID, strings.TrimPrefix(resp.Name, "/"), resp.State, resp.Created, resp.Mounts, resp.NetworkSettings), nil
}

func (r *Runtime) ListByNamePrefix(ctx context.Context, prefix string) ([]runtime.ContainerInfo, error) {
	f := dockerfilters.NewArgs()
	f.Add("name", prefix)

	containers, err := r.client.ContainerList(ctx, container.ListOptions{All: true, Filters: f})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	infos := make([]runtime.ContainerInfo, 0, len(containers))

	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		if !strings.HasPrefix(name, prefix) {
			continue
		}

		full, err := r.Inspect(ctx, c.ID)
		if err != nil {
			logger.Warnf("inspect %s during list failed: %v", c.ID, err)

			continue
		}

		infos = append(infos, full)
	}

	return infos, nil
}

func statusFromState(running, dead bool, status string) runtime.Status {
	switch {
	case running:
		return runtime.StatusRunning
	case dead:
		return runtime.StatusDead
	case status == "exited":
		return runtime.StatusExited
	default:
		return runtime.StatusUnknown
	}
}
