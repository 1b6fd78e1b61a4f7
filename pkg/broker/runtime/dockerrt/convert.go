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

package dockerrt

import (
	"strconv"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"

	"vibe-broker/pkg/broker/runtime"
)

func toContainerInfo(id, name string, state *container.State, created string, mounts []dockertypes.MountPoint, netSettings *dockertypes.NetworkSettings) runtime.ContainerInfo {
	info := runtime.ContainerInfo{
		ID:         id,
		Name:       name,
		BindMounts: make(map[string]string, len(mounts)),
	}

	if state != nil {
		info.Status = statusFromState(state.Running, state.Dead, state.Status)
	}

	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		info.CreatedUnix = t.Unix()
	}

	for _, m := range mounts {
		info.BindMounts[m.Destination] = m.Source
	}

	if netSettings != nil {
		for containerPort, bindings := range netSettings.Ports {
			for _, b := range bindings {
				hostPort, err := strconv.Atoi(b.HostPort)
				if err != nil {
					continue
				}

				info.Ports = append(info.Ports, runtime.PortBinding{
					ContainerPort: containerPort.Int(),
					HostIP:        b.HostIP,
					HostPort:      hostPort,
				})
			}
		}
	}

	return info
}
