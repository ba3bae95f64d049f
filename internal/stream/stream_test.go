package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/imaround-world/ifit-zone-log/internal/telemetry"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	r := gin.New()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.clientCount() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("feed has %d clients, want %d", h.clientCount(), n)
}

func TestStatusEndpoint(t *testing.T) {
	battery := 85
	h := NewHub(func() Status {
		return Status{
			RunID: "run-1",
			Strap: &SessionStatus{
				Address: "A0:9E:1A:00:00:01",
				State:   "connected",
				Battery: &battery,
			},
		}
	})
	srv := newTestServer(t, h)

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /status = %d, want 200", resp.StatusCode)
	}

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if got.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", got.RunID)
	}
	if got.Console != nil {
		t.Error("Console reported for a run without a console")
	}
	if got.Strap == nil || got.Strap.State != "connected" {
		t.Errorf("Strap = %+v, want a connected session", got.Strap)
	}
	if got.Strap.Battery == nil || *got.Strap.Battery != 85 {
		t.Errorf("Strap.Battery = %v, want 85", got.Strap.Battery)
	}
}

func TestBroadcastSample(t *testing.T) {
	h := NewHub(func() Status { return Status{} })
	srv := newTestServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()
	waitForClients(t, h, 1)

	speed := 8.5
	hr := 120
	sample := telemetry.Sample{
		Timestamp: time.Date(2025, 3, 9, 18, 4, 5, 0, time.UTC),
		Speed:     &speed,
		HeartRate: &hr,
	}
	if err := h.WriteSample(sample); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read broadcast: %v", err)
	}

	var got telemetry.Sample
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if got.Speed == nil || *got.Speed != 8.5 {
		t.Errorf("Speed = %v, want 8.5", got.Speed)
	}
	if got.HeartRate == nil || *got.HeartRate != 120 {
		t.Errorf("HeartRate = %v, want 120", got.HeartRate)
	}
	if got.Incline != nil {
		t.Errorf("Incline = %v for an absent console, want null", *got.Incline)
	}
}

func TestDeadClientsAreDropped(t *testing.T) {
	h := NewHub(func() Status { return Status{} })
	srv := newTestServer(t, h)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	waitForClients(t, h, 1)
	conn.Close()

	// Either the read loop notices the close or a broadcast write fails;
	// both must end with the client gone.
	deadline := time.Now().Add(2 * time.Second)
	for h.clientCount() > 0 && time.Now().Before(deadline) {
		_ = h.WriteSample(telemetry.Sample{})
		time.Sleep(10 * time.Millisecond)
	}
	if got := h.clientCount(); got != 0 {
		t.Errorf("clients = %d after close, want 0", got)
	}
}

func TestWriteSampleWithoutClients(t *testing.T) {
	h := NewHub(func() Status { return Status{} })
	if err := h.WriteSample(telemetry.Sample{}); err != nil {
		t.Errorf("WriteSample with no clients: %v", err)
	}
}
