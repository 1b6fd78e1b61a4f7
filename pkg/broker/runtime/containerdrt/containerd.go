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

// Package containerdrt implements runtime.ContainerRuntime against
// containerd, an alternate backend behind the same seam as dockerrt.
// Grounded in pkg/trust-tunnel-agent/session/containerd.go, generalized
// from exec-into-existing-container to full container lifecycle since
// the session manager here always spawns a fresh container per session.
package containerdrt

import (
	"context"
	"fmt"
	"strings"
	"syscall"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/common/logutil"
)

var logger = logutil.GetLogger("containerdrt")

const sessionNameLabel = "vibe-broker.session-name"

// Runtime wraps a containerd client scoped to a single namespace.
type Runtime struct {
	client    *containerd.Client
	namespace string
}

func New(endpoint, namespace string) (*Runtime, error) {
	if namespace == "" {
		namespace = "default"
	}

	cli, err := containerd.New(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create containerd client: %w", err)
	}

	return &Runtime{client: cli, namespace: namespace}, nil
}

func (r *Runtime) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, r.namespace)
}

func (r *Runtime) Create(ctx context.Context, spec runtime.CreateSpec) (string, error) {
	ctx = r.ctx(ctx)

	image, err := r.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
	if err != nil {
		return "", fmt.Errorf("pull image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(spec.Env),
	}

	if spec.BindMountSource != "" {
		opts = append(opts, oci.WithMounts([]specs.Mount{
			{
				Type:        "bind",
				Source:      spec.BindMountSource,
				Destination: spec.BindMountTarget,
				Options:     []string{"rbind", "rw"},
			},
		}))
	}

	cont, err := r.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", image),
		containerd.WithNewSpec(opts...),
		containerd.WithContainerLabels(map[string]string{sessionNameLabel: spec.Name}),
	)
	if err != nil {
		return "", fmt.Errorf("new container: %w", err)
	}

	return cont.ID(), nil
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	cont, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return err
	}

	task, err := cont.NewTask(ctx, cio.NewCreator(cio.WithStdio))
	if err != nil {
		return fmt.Errorf("new task: %w", err)
	}

	return task.Start(ctx)
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	cont, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return err
	}

	task, err := cont.Task(ctx, nil)
	if err != nil {
		// No task running is not an error for Stop.
		return nil
	}

	return task.Kill(ctx, syscall.SIGTERM)
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	ctx = r.ctx(ctx)

	cont, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return err
	}

	if task, err := cont.Task(ctx, nil); err == nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
	}

	return cont.Delete(ctx, containerd.WithSnapshotCleanup)
}

func (r *Runtime) Inspect(ctx context.Context, id string) (runtime.ContainerInfo, error) {
	ctx = r.ctx(ctx)

	cont, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return runtime.ContainerInfo{}, err
	}

	info, err := cont.Info(ctx)
	if err != nil {
		return runtime.ContainerInfo{}, err
	}

	status := runtime.StatusExited

	if task, err := cont.Task(ctx, nil); err == nil {
		st, err := task.Status(ctx)
		if err == nil && st.Status == containerd.Running {
			status = runtime.StatusRunning
		}
	}

	return runtime.ContainerInfo{
		ID:          cont.ID(),
		Name:        info.Labels[sessionNameLabel],
		Status:      status,
		CreatedUnix: info.CreatedAt.Unix(),
	}, nil
}

func (r *Runtime) ListByNamePrefix(ctx context.Context, prefix string) ([]runtime.ContainerInfo, error) {
	ctx = r.ctx(ctx)

	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	var infos []runtime.ContainerInfo

	for _, c := range containers {
		info, err := c.Info(ctx)
		if err != nil {
			logger.Warnf("inspect containerd container during list failed: %v", err)

			continue
		}

		name := info.Labels[sessionNameLabel]
		if !strings.HasPrefix(name, prefix) {
			continue
		}

		ci, err := r.Inspect(ctx, c.ID())
		if err != nil {
			continue
		}

		infos = append(infos, ci)
	}

	return infos, nil
}
