package consensus

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MQTTConfig holds the broker settings of the result publisher.
type MQTTConfig struct {
	Broker        string `yaml:"broker"`
	PublishPrefix string `yaml:"publishPrefix,omitempty"`
	ClientID      string `yaml:"clientId,omitempty"`
	Username      string `yaml:"username,omitempty"`
	Password      string `yaml:"password,omitempty"`
	QoS           *int   `yaml:"qos,omitempty"`
	Retain        *bool  `yaml:"retain,omitempty"`
}

// FileConfig is the on-disk configuration of the markconsensus CLI.
type FileConfig struct {
	Reducer Config     `yaml:"reducer"`
	MQTT    MQTTConfig `yaml:"mqtt,omitempty"`
}

// LoadConfig loads a reducer configuration from a YAML file. The reducer
// section is returned as written; defaults are applied by the engine.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Reducer.WithDefaults().Validate(); err != nil {
		return nil, fmt.Errorf("reducer: %w", err)
	}
	if q := config.MQTT.QoS; q != nil && (*q < 0 || *q > 2) {
		return nil, fmt.Errorf("mqtt: qos must be 0, 1 or 2, got %d", *q)
	}
	return &config, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(path string, config *FileConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// LoadRequest reads the grouped extracts of one subject from a JSON file.
// An embedded config is kept as is.
func LoadRequest(path string) (*Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("input file not found: %s", path)
		}
		return nil, fmt.Errorf("reading input file: %w", err)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing input JSON: %w", err)
	}
	if len(req.Frames) == 0 {
		return nil, fmt.Errorf("input has no frames")
	}
	return &req, nil
}
