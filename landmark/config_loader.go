package landmark

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
}

// SessionEntry defines one calibration session in the config file.
// Mode, output and update mode are written as their canonical enum names
// and validated at load time.
type SessionEntry struct {
	ID         string `yaml:"id" json:"id"`
	Mode       string `yaml:"mode" json:"mode"`                                 // Rigid, Similarity, Warping
	Output     string `yaml:"output,omitempty" json:"output,omitempty"`         // Linear (default), General
	UpdateMode string `yaml:"updateMode,omitempty" json:"updateMode,omitempty"` // Manual (default), Automatic
	Topic      string `yaml:"topic,omitempty" json:"topic,omitempty"`           // MQTT base topic for this session
}

// Config represents the full configuration file
type Config struct {
	MQTT MQTTConfig `yaml:"mqtt" json:"mqtt"`
	// EigenvalueThreshold tunes the collinearity check; 0 selects the
	// built-in default. Units are squared input-length units.
	EigenvalueThreshold float64        `yaml:"eigenvalueThreshold,omitempty" json:"eigenvalueThreshold,omitempty"`
	Sessions            []SessionEntry `yaml:"sessions" json:"sessions"`
}

// LoadConfig loads the service configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if len(config.Sessions) == 0 {
		return nil, fmt.Errorf("at least one session must be defined")
	}

	seen := make(map[string]bool)
	for i, se := range config.Sessions {
		if se.ID == "" {
			return nil, fmt.Errorf("session[%d].id is required", i)
		}
		if seen[se.ID] {
			return nil, fmt.Errorf("session[%d]: duplicate id %q", i, se.ID)
		}
		seen[se.ID] = true

		if _, err := ParseRegistrationMode(se.Mode); err != nil {
			return nil, fmt.Errorf("session %q: %w", se.ID, err)
		}
		if se.Output != "" {
			if _, err := ParseOutputKind(se.Output); err != nil {
				return nil, fmt.Errorf("session %q: %w", se.ID, err)
			}
		}
		if se.UpdateMode != "" {
			if _, err := ParseUpdateMode(se.UpdateMode); err != nil {
				return nil, fmt.Errorf("session %q: %w", se.ID, err)
			}
		}
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// SessionByID returns the session entry for the given ID
func (c *Config) SessionByID(id string) *SessionEntry {
	for i := range c.Sessions {
		if c.Sessions[i].ID == id {
			return &c.Sessions[i]
		}
	}
	return nil
}

// RegisterSessions registers every configured session with the tracker.
// Entries use their declared output kind and update mode, defaulting to a
// linear target and Manual updates.
func (c *Config) RegisterSessions(tracker *SessionTracker) error {
	for _, se := range c.Sessions {
		mode, err := ParseRegistrationMode(se.Mode)
		if err != nil {
			return fmt.Errorf("session %q: %w", se.ID, err)
		}

		output := LinearOutput
		if se.Output != "" {
			if output, err = ParseOutputKind(se.Output); err != nil {
				return fmt.Errorf("session %q: %w", se.ID, err)
			}
		}

		update := UpdateManual
		if se.UpdateMode != "" {
			if update, err = ParseUpdateMode(se.UpdateMode); err != nil {
				return fmt.Errorf("session %q: %w", se.ID, err)
			}
		}

		if _, err := tracker.AddSession(se.ID, mode, output, update); err != nil {
			return err
		}
	}
	return nil
}
