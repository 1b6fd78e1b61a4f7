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
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"vibe-broker/pkg/broker/auth"
	"vibe-broker/pkg/common/logutil"
)

// Option defines the options for the vibe-broker server.
type Option struct {
	Host string `toml:"host"`
	Port string `toml:"port"`

	DataDir               string          `toml:"data_dir"`
	ContainerImage        string          `toml:"container_image"`
	ContainerInternalPort int             `toml:"container_internal_port"`
	MaxSessionsPerUser    int             `toml:"max_sessions_per_user"`
	MemoryLimit           string          `toml:"memory_limit"`
	CPUQuota              int64           `toml:"cpu_quota"`
	PortRange             PortRangeConfig `toml:"port_range"`

	LogConfig     logutil.Config `toml:"log_config"`
	TLSConfig     TLSConfig      `toml:"tls_config"`
	AuthConfig    auth.Config    `toml:"auth_config"`
	RuntimeConfig RuntimeConfig  `toml:"runtime_config"`
}

const (
	defaultMaxSessionsPerUser = 3
	defaultPortLow            = 17000
	defaultPortHigh           = 18000
)

func defaultOption() Option {
	return Option{
		Host:                  "127.0.0.1",
		Port:                  "8080",
		DataDir:               "data",
		ContainerInternalPort: 8022,
		MaxSessionsPerUser:    defaultMaxSessionsPerUser,
		PortRange:             PortRangeConfig{Low: defaultPortLow, High: defaultPortHigh},
		LogConfig:             logutil.Config{Level: "info"},
	}
}

var (
	Version    string
	configPath string
)

// NewCommand creates and returns a new cobra command object.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vibe-broker",
		Short: "vibe-broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			options := defaultOption()
			if err := loadConfigFromToml(&options); err != nil {
				return fmt.Errorf("failed to load config from toml: %w", err)
			}

			if err := NewServer().Start(&options); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Display the current version of vibe-broker",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
	cmd.AddCommand(versionCmd)

	return cmd
}

// loadConfigFromToml loads the configuration from the given TOML file,
// layered onto whatever defaults the caller has already set. A missing
// file is tolerated -- an anonymous, docker-backed broker on defaults is
// a valid configuration.
func loadConfigFromToml(config *Option) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	_, err := toml.DecodeFile(configPath, config)
	if err != nil {
		return fmt.Errorf("error reading %s: %w", configPath, err)
	}

	return nil
}

func logGlobalConfig(opt *Option) {
	logrus.Info("vibe-broker start...")

	b, _ := json.Marshal(opt)
	logrus.Infof("config: %#v", string(b))
}

// memoryBytes parses MemoryLimit ("512m", "2g", ...) the way docker CLI
// flags do. An empty limit means unlimited.
func (o *Option) memoryBytes() (int64, error) {
	if o.MemoryLimit == "" {
		return 0, nil
	}

	return units.RAMInBytes(o.MemoryLimit)
}
