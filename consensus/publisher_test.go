package consensus

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func testRecord() *ConsensusRecord {
	res := &ToolResult{
		Tool:   "T0",
		Shape:  "point",
		Metric: MetricEuclidean,
		Params: []string{"x", "y"},
		Values: [][]float64{{1, 2}, {3, 4}},
		Labels: []int{0, 0},
		Clusters: []ClusterSummary{
			{Label: 0, Count: 2, Params: []float64{2, 3}, Variance: []*float64{nil, nil}},
		},
	}
	return &ConsensusRecord{Frames: map[string]map[string]*ToolResult{
		"frame1": {"T0": res},
		"frame0": {"T0": res},
	}}
}

func TestNewPublisher(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	publisher := NewPublisher(nil, "")
	if publisher == nil {
		t.Fatal("NewPublisher() returned nil")
	}
	if publisher.publishPrefix != DefaultPublishPrefix {
		t.Errorf("Default prefix = %s, want %s", publisher.publishPrefix, DefaultPublishPrefix)
	}
	if publisher.qos != 1 {
		t.Errorf("Default QoS = %d, want 1", publisher.qos)
	}
	if !publisher.retain {
		t.Error("Default retain should be true")
	}
}

func TestNewPublisher_EnvPrefix(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "from-env")
	publisher := NewPublisher(nil, "from-config")
	if got := publisher.Topic("s1", "frame0"); got != "from-env/s1/frame0" {
		t.Errorf("Topic() = %s, want from-env/s1/frame0", got)
	}
}

func TestPublisher_SetQoS(t *testing.T) {
	publisher := NewPublisher(nil, "p")
	publisher.SetQoS(2)
	if publisher.qos != 2 {
		t.Errorf("QoS = %d, want 2", publisher.qos)
	}
	publisher.SetQoS(7)
	if publisher.qos != 2 {
		t.Errorf("invalid QoS changed the level to %d", publisher.qos)
	}
	publisher.SetRetain(false)
	if publisher.retain {
		t.Error("retain should be false after SetRetain(false)")
	}
}

func TestPublisher_PublishRecord(t *testing.T) {
	t.Setenv("MQTT_PUBLISH_PREFIX", "")
	client := NewMockClient()
	client.SetConnected(true)
	publisher := NewPublisher(client, "volunteers")

	sent, err := publisher.PublishRecord("subject-1", testRecord())
	if err != nil {
		t.Fatalf("PublishRecord() error = %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}

	messages := client.GetPublishedMessages()
	if len(messages) != 2 {
		t.Fatalf("published %d messages, want 2", len(messages))
	}
	if messages[0].Topic != "volunteers/subject-1/frame0" || messages[1].Topic != "volunteers/subject-1/frame1" {
		t.Errorf("topics = %s, %s; want frame order", messages[0].Topic, messages[1].Topic)
	}
	if messages[0].QoS != 1 || !messages[0].Retain {
		t.Errorf("QoS/retain = %d/%v, want 1/true", messages[0].QoS, messages[0].Retain)
	}

	var payload map[string]any
	if err := json.Unmarshal(messages[0].Payload, &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	for _, key := range []string{"T0_cluster_labels", "T0_clusters_x", "T0_clusters_var_x", "T0_clusters_var_x_y"} {
		if _, ok := payload[key]; !ok {
			t.Errorf("payload missing %s", key)
		}
	}
}

func TestPublisher_PublishRecord_Errors(t *testing.T) {
	rec := testRecord()

	if _, err := NewPublisher(nil, "p").PublishRecord("s", rec); err == nil {
		t.Error("expected error without a client")
	}

	client := NewMockClient()
	if _, err := NewPublisher(client, "p").PublishRecord("s", rec); err == nil || !strings.Contains(err.Error(), "not connected") {
		t.Errorf("error = %v, want not connected", err)
	}

	client.SetConnected(true)
	if _, err := NewPublisher(client, "p").PublishRecord("", rec); err == nil || !strings.Contains(err.Error(), "subject is required") {
		t.Errorf("error = %v, want subject is required", err)
	}

	boom := errors.New("broker went away")
	client.SetPublishError(boom)
	sent, err := NewPublisher(client, "p").PublishRecord("s", rec)
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
}

func TestPublisher_PublishRecord_Timeout(t *testing.T) {
	client := NewMockClient()
	client.SetConnected(true)
	client.SetPublishStalled(true)

	sent, err := NewPublisher(client, "p").PublishRecord("s", testRecord())
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timed out", err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0", sent)
	}
}

func TestClientID(t *testing.T) {
	t.Setenv("MQTT_CLIENT_ID", "")
	a := clientID(MQTTConfig{ClientID: "worker"})
	b := clientID(MQTTConfig{ClientID: "worker"})
	if !strings.HasPrefix(a, "worker-") || len(a) != len("worker-")+8 {
		t.Errorf("clientID() = %s, want worker-<8 chars>", a)
	}
	if a == b {
		t.Error("client ids should be unique per connection")
	}

	t.Setenv("MQTT_CLIENT_ID", "env")
	if got := clientID(MQTTConfig{ClientID: "worker"}); !strings.HasPrefix(got, "env-") {
		t.Errorf("clientID() = %s, want env prefix", got)
	}
}

func TestNewMQTTClient_NoBroker(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	if _, err := NewMQTTClient(MQTTConfig{}); err == nil {
		t.Error("expected error without a broker")
	}
}

func TestConnect(t *testing.T) {
	client := NewMockClient()
	if err := connect(client); err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("client should be connected")
	}

	failing := NewMockClient()
	failing.SetConnectError(errors.New("refused"))
	if err := connect(failing); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("connect() error = %v, want refused", err)
	}
}

func TestMockClient_Disconnect(t *testing.T) {
	client := NewMockClient()
	client.Connect()
	client.Disconnect(0)
	if client.IsConnectionOpen() {
		t.Error("client should be disconnected")
	}
	if token := client.Publish("t", 0, false, "x"); token.Error() == nil {
		t.Error("publish on a closed client should fail")
	}
}
