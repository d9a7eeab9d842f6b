package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rivulet-chat/rivulet/pkg/call"
	"github.com/rivulet-chat/rivulet/pkg/signaling"
	"github.com/rivulet-chat/rivulet/pkg/telemetry"
	"github.com/rivulet-chat/rivulet/pkg/webrtcext"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Client configuration.
type Config struct {
	// Relay connection and local identity.
	Relay signaling.Config `yaml:"relay"`
	// Call engine configuration.
	Call call.Config `yaml:"call"`
	// WebRTC (ICE servers, timeouts) configuration.
	WebRTC webrtcext.Config `yaml:"webrtc"`
	// Tracing configuration. Disabled unless an OTLP host is set.
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Starting from which level to log stuff.
	LogLevel string `yaml:"log"`
}

// ErrNoConfigEnvVar is returned when the CONFIG environment variable is not set.
var ErrNoConfigEnvVar = errors.New("environment variable not set or invalid")

// Tries to load a config from the `CONFIG` environment variable.
// If the environment variable is not set, tries to load a config from the
// provided path to the config file (YAML). Returns an error if the config
// could not be loaded.
func LoadConfig(path string) (*Config, error) {
	config, err := LoadConfigFromEnv()
	if err != nil {
		if !errors.Is(err, ErrNoConfigEnvVar) {
			return nil, err
		}

		return LoadConfigFromPath(path)
	}

	return config, nil
}

// Tries to load the config from environment variable (`CONFIG`).
func LoadConfigFromEnv() (*Config, error) {
	configEnv := os.Getenv("CONFIG")
	if configEnv == "" {
		return nil, ErrNoConfigEnvVar
	}

	return LoadConfigFromString(configEnv)
}

// Tries to load a config from the provided path.
func LoadConfigFromPath(path string) (*Config, error) {
	logrus.WithField("path", path).Info("loading config")

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return LoadConfigFromString(string(file))
}

// Load config from the provided string.
// Returns an error if the string is not a valid YAML.
func LoadConfigFromString(configString string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(configString), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML file: %w", err)
	}

	if err := config.Relay.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
