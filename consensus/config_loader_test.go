package consensus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func validConfigYAML() string {
	return `reducer:
  shape: rotateRectangle
  metric_type: IoU
  backend: optics
  min_samples: 4
  details:
    T0: [question, ""]
mqtt:
  broker: tcp://localhost:1883
  publishPrefix: volunteers
  clientId: reducer-test
`
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func TestLoadConfig_NotExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
	if !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("error = %v, want config file not found", err)
	}
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", validConfigYAML())

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Reducer.Shape != "rotateRectangle" {
		t.Errorf("Shape = %q, want rotateRectangle", cfg.Reducer.Shape)
	}
	if cfg.Reducer.MetricType != MetricIoU {
		t.Errorf("MetricType = %q, want IoU", cfg.Reducer.MetricType)
	}
	if cfg.Reducer.Backend != BackendOPTICS {
		t.Errorf("Backend = %q, want optics", cfg.Reducer.Backend)
	}
	if cfg.Reducer.MinSamples != 4 {
		t.Errorf("MinSamples = %d, want 4", cfg.Reducer.MinSamples)
	}
	if got := cfg.Reducer.Details["T0"]; len(got) != 2 || got[0] != "question" || got[1] != "" {
		t.Errorf("Details[T0] = %q, want [question \"\"]", got)
	}
	if cfg.Reducer.Eps != 0 {
		t.Errorf("Eps = %v, defaults must not be written back", cfg.Reducer.Eps)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("Broker = %q, want %q", cfg.MQTT.Broker, "tcp://localhost:1883")
	}
	if cfg.MQTT.PublishPrefix != "volunteers" {
		t.Errorf("PublishPrefix = %q, want volunteers", cfg.MQTT.PublishPrefix)
	}
	if cfg.MQTT.ClientID != "reducer-test" {
		t.Errorf("ClientID = %q, want reducer-test", cfg.MQTT.ClientID)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{
			name:  "missing shape",
			yaml:  "reducer:\n  eps: 3\n",
			field: "shape",
		},
		{
			name:  "unknown backend",
			yaml:  "reducer:\n  shape: point\n  backend: kmeans\n",
			field: "backend",
		},
		{
			name:  "IoU on points",
			yaml:  "reducer:\n  shape: point\n  metric_type: IoU\n",
			field: "metric_type",
		},
		{
			name:  "contours on rectangles",
			yaml:  "reducer:\n  shape: rectangle\n  metric_type: IoU\n  contours: true\n",
			field: "contours",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "config.yaml", tt.yaml)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !IsConfigError(err) {
				t.Errorf("error %v is not a ConfigError", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %q", err, tt.field)
			}
		})
	}
}

func TestLoadConfig_MQTTDelivery(t *testing.T) {
	path := writeFile(t, "config.yaml", "reducer:\n  shape: point\nmqtt:\n  broker: tcp://b:1883\n  qos: 0\n  retain: false\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MQTT.QoS == nil || *cfg.MQTT.QoS != 0 {
		t.Errorf("QoS = %v, want 0", cfg.MQTT.QoS)
	}
	if cfg.MQTT.Retain == nil || *cfg.MQTT.Retain {
		t.Errorf("Retain = %v, want false", cfg.MQTT.Retain)
	}

	path = writeFile(t, "bad.yaml", "reducer:\n  shape: point\nmqtt:\n  qos: 3\n")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "qos") {
		t.Errorf("error = %v, want qos error", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", "reducer: [unclosed\n")
	_, err := LoadConfig(path)
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parsing config YAML") {
		t.Errorf("error = %v, want parsing config YAML", err)
	}
}

// ---------------------------------------------------------------------------
// SaveConfig
// ---------------------------------------------------------------------------

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	orig := &FileConfig{
		Reducer: Config{Shape: "polygon", Contours: true, Smoothing: SmoothRound, GridResolution: 64},
		MQTT:    MQTTConfig{Broker: "tcp://broker:1883"},
	}
	if err := SaveConfig(path, orig); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Reducer.Shape != "polygon" || !loaded.Reducer.Contours {
		t.Errorf("Reducer = %+v, want polygon with contours", loaded.Reducer)
	}
	if loaded.Reducer.Smoothing != SmoothRound || loaded.Reducer.GridResolution != 64 {
		t.Errorf("Smoothing/GridResolution = %q/%d, want round/64", loaded.Reducer.Smoothing, loaded.Reducer.GridResolution)
	}
	if loaded.MQTT.Broker != "tcp://broker:1883" {
		t.Errorf("Broker = %q, want tcp://broker:1883", loaded.MQTT.Broker)
	}
}

// ---------------------------------------------------------------------------
// LoadRequest
// ---------------------------------------------------------------------------

func TestLoadRequest(t *testing.T) {
	body := `{
  "config": {"shape": "point", "eps": 2},
  "frames": {
    "frame0": {
      "T0": {
        "values": [[1, 2], [3, 4]],
        "users": ["a", "b"],
        "created_at": ["2024-03-01T12:00:00Z", "2024-03-01T12:05:00Z"],
        "details": [[{"0": 1}], [{"1": 1}]]
      }
    }
  }
}`
	req, err := LoadRequest(writeFile(t, "input.json", body))
	if err != nil {
		t.Fatalf("LoadRequest: %v", err)
	}
	if req.Config.Shape != "point" || req.Config.Eps != 2 {
		t.Errorf("Config = %+v, want point with eps 2", req.Config)
	}
	g := req.Frames["frame0"]["T0"]
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	if g.Values[1][0] != 3 {
		t.Errorf("Values[1][0] = %v, want 3", g.Values[1][0])
	}
	if !g.Created[1].After(g.Created[0]) {
		t.Errorf("created_at not parsed in order: %v", g.Created)
	}
	if g.Details[1][0]["1"] != float64(1) {
		t.Errorf("Details[1][0] = %v, want {1: 1}", g.Details[1][0])
	}
}

func TestLoadRequest_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", "{", "parsing input JSON"},
		{"no frames", `{"config": {"shape": "point"}}`, "input has no frames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRequest(writeFile(t, "input.json", tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want %q", err, tt.want)
			}
		})
	}

	_, err := LoadRequest(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "input file not found") {
		t.Errorf("error = %v, want input file not found", err)
	}
}
