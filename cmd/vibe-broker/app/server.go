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

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"vibe-broker/pkg/broker/auth"
	_ "vibe-broker/pkg/broker/auth/localauth"
	_ "vibe-broker/pkg/broker/auth/oidcauth"
	"vibe-broker/pkg/broker/monitor"
	"vibe-broker/pkg/broker/ownerstore"
	"vibe-broker/pkg/broker/reconciler"
	"vibe-broker/pkg/broker/runtime"
	"vibe-broker/pkg/broker/runtime/containerdrt"
	"vibe-broker/pkg/broker/runtime/dockerrt"
	"vibe-broker/pkg/broker/server"
	"vibe-broker/pkg/broker/session"
	"vibe-broker/pkg/broker/transport/polling"
	"vibe-broker/pkg/common/logutil"
)

// monitorAddr is the fixed metrics listener, separate from the main
// listener so a scraper never has to pass through AuthzGate.
const monitorAddr = "0.0.0.0:19104"

// runServer configures and starts the vibe-broker server.
func runServer(opt *Option) error {
	level, err := logrus.ParseLevel(opt.LogConfig.Level)
	if err != nil {
		return err
	}

	logutil.SetLevel(level)
	logutil.SetExpireDay(opt.LogConfig.ExpireDays)

	logGlobalConfig(opt)

	if opt.AuthConfig.Name == "" && !isLoopback(opt.Host) {
		return fmt.Errorf("vibe-broker: refusing to bind %s with authentication disabled; spec requires a loopback address unless auth_config is set", opt.Host)
	}

	rt, err := buildRuntime(opt.RuntimeConfig)
	if err != nil {
		return fmt.Errorf("vibe-broker: building container runtime: %w", err)
	}

	owners, err := ownerstore.Open(filepath.Join(opt.DataDir, "session_owners.json"))
	if err != nil {
		return fmt.Errorf("vibe-broker: opening ownership store: %w", err)
	}

	memBytes, err := opt.memoryBytes()
	if err != nil {
		return fmt.Errorf("vibe-broker: parsing memory_limit %q: %w", opt.MemoryLimit, err)
	}

	sessionCfg := session.Config{
		ContainerImage:        opt.ContainerImage,
		ContainerInternalPort: opt.ContainerInternalPort,
		WorkspaceRoot:         filepath.Join(opt.DataDir, "workspaces"),
		MaxSessionsPerUser:    opt.MaxSessionsPerUser,
		MemoryBytes:           memBytes,
		CPUQuota:              opt.CPUQuota,
	}

	manager := session.New(sessionCfg, rt, owners, opt.PortRange.Low, opt.PortRange.High)

	ctx := context.Background()
	manager.Recover(ctx)
	monitor.MetricsRecoveredOnStartup.Set(float64(len(manager.List())))

	authn, err := auth.CreateFromConfig(opt.AuthConfig)
	if err != nil {
		return fmt.Errorf("vibe-broker: building authenticator: %w", err)
	}

	pollingTable := polling.NewTable(manager, opt.ContainerInternalPort)

	recon := reconciler.New(manager, authn, pollingTable)
	recon.Start(ctx)

	setupSignal(recon.Stop)

	go startMonitorServer()

	srv := server.New(manager, owners, authn, pollingTable)

	httpServer := &http.Server{
		Addr:    net.JoinHostPort(opt.Host, opt.Port),
		Handler: srv.Router(),
	}

	if opt.TLSConfig.TLSVerify {
		return httpServer.ListenAndServeTLS(opt.TLSConfig.TLSCert, opt.TLSConfig.TLSKey)
	}

	return httpServer.ListenAndServe()
}

func buildRuntime(cfg RuntimeConfig) (runtime.ContainerRuntime, error) {
	switch cfg.Backend {
	case "", "docker":
		return dockerrt.New(cfg.Endpoint, cfg.DockerAPIVersion)
	case "containerd":
		return containerdrt.New(cfg.Endpoint, cfg.ContainerdNS)
	default:
		return nil, fmt.Errorf("unknown runtime backend %q", cfg.Backend)
	}
}

func isLoopback(host string) bool {
	if host == "" || host == "localhost" {
		return true
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}

// startMonitorServer starts the Prometheus metrics endpoint, separate
// from the main listener so a scraper never needs to authenticate
// through AuthzGate.
func startMonitorServer() {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	srv := &http.Server{Addr: monitorAddr, Handler: r}
	if err := srv.ListenAndServe(); err != nil {
		logrus.Errorf("monitor server stopped: %v", err)
	}
}
