package landmark

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validConfigYAML() string {
	return `mqtt:
  broker: tcp://localhost:1883
  publishPrefix: fidcal
  clientId: fidcal-test
sessions:
  - id: probe-a
    mode: Rigid
    topic: trackers/probe-a
  - id: probe-b
    mode: Warping
    output: General
    updateMode: Automatic
    topic: trackers/probe-b
`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want mention of missing file", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if len(cfg.Sessions) != 2 {
		t.Fatalf("len(Sessions) = %d, want 2", len(cfg.Sessions))
	}
	if cfg.Sessions[1].UpdateMode != "Automatic" {
		t.Errorf("Sessions[1].UpdateMode = %q, want Automatic", cfg.Sessions[1].UpdateMode)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "sessions: [:::")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error, got nil")
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "no sessions",
			body: "mqtt:\n  broker: tcp://localhost:1883\n",
		},
		{
			name: "missing id",
			body: "sessions:\n  - mode: Rigid\n",
		},
		{
			name: "duplicate id",
			body: "sessions:\n  - id: a\n    mode: Rigid\n  - id: a\n    mode: Rigid\n",
		},
		{
			name: "bad mode",
			body: "sessions:\n  - id: a\n    mode: Affine\n",
		},
		{
			name: "bad output",
			body: "sessions:\n  - id: a\n    mode: Rigid\n    output: Matrix\n",
		},
		{
			name: "bad update mode",
			body: "sessions:\n  - id: a\n    mode: Rigid\n    updateMode: Sometimes\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.body)
			if _, err := LoadConfig(path); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		MQTT: MQTTConfig{Broker: "tcp://broker:1883", PublishPrefix: "fidcal"},
		Sessions: []SessionEntry{
			{ID: "probe", Mode: "Similarity", UpdateMode: "Automatic"},
		},
	}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig after save: %v", err)
	}
	if loaded.Sessions[0].Mode != "Similarity" {
		t.Errorf("Mode = %q, want Similarity", loaded.Sessions[0].Mode)
	}
}

func TestSessionByID(t *testing.T) {
	cfg := &Config{Sessions: []SessionEntry{{ID: "a", Mode: "Rigid"}, {ID: "b", Mode: "Warping"}}}

	if got := cfg.SessionByID("b"); got == nil || got.Mode != "Warping" {
		t.Errorf("SessionByID(b) = %+v, want Warping entry", got)
	}
	if got := cfg.SessionByID("missing"); got != nil {
		t.Errorf("SessionByID(missing) = %+v, want nil", got)
	}
}

func TestRegisterSessions(t *testing.T) {
	path := writeConfig(t, validConfigYAML())
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	tracker := NewSessionTracker(nil)
	if err := cfg.RegisterSessions(tracker); err != nil {
		t.Fatalf("RegisterSessions: %v", err)
	}

	ids := tracker.Sessions()
	if len(ids) != 2 || ids[0] != "probe-a" || ids[1] != "probe-b" {
		t.Errorf("Sessions() = %v, want [probe-a probe-b]", ids)
	}

	mode, err := tracker.UpdateMode("probe-b")
	if err != nil {
		t.Fatalf("UpdateMode: %v", err)
	}
	if mode != UpdateAutomatic {
		t.Errorf("probe-b update mode = %v, want Automatic", mode)
	}
}
