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

// Package runtime defines the container-runtime seam the session manager
// spawns, inspects, and reaps sessions through, as an external
// collaborator matching the Docker Engine API subset used here; dockerrt
// and containerdrt are the two concrete implementations.
package runtime

import "context"

// Status is the coarse lifecycle state the runtime reports for a container.
type Status string

const (
	StatusRunning Status = "running"
	StatusExited  Status = "exited"
	StatusDead    Status = "dead"
	StatusUnknown Status = "unknown"
)

// PortBinding describes one exposed-container-port to host-port mapping.
type PortBinding struct {
	ContainerPort int
	HostIP        string
	HostPort      int
}

// CreateSpec describes a container to spawn for a new session.
type CreateSpec struct {
	Name            string
	Image           string
	Env             []string
	Ports           []PortBinding
	BindMountSource string // host path
	BindMountTarget string // in-container path
	ExtraHosts      []string
	MemoryBytes     int64
	CPUQuota        int64 // microseconds per 100ms period; 0 means unlimited
	RestartPolicy   string
}

// ContainerInfo is what the manager needs back from inspect/list.
type ContainerInfo struct {
	ID          string
	Name        string
	Status      Status
	Ports       []PortBinding
	BindMounts  map[string]string // target -> source
	CreatedUnix int64
}

// ContainerRuntime is the subset of the Docker Engine API (or an
// equivalent runtime) the session manager needs: create, start, stop,
// remove, inspect, and list-by-name-prefix.
type ContainerRuntime interface {
	Create(ctx context.Context, spec CreateSpec) (id string, err error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (ContainerInfo, error)
	ListByNamePrefix(ctx context.Context, prefix string) ([]ContainerInfo, error)
}
