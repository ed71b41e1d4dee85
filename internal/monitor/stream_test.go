package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/phy-core/internal/phyloop"
	"github.com/signalsfoundry/phy-core/phymetrics"
)

func waitForClients(t *testing.T, h *hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("stream clients = %d, want %d", h.len(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamPublishesReports(t *testing.T) {
	board := newTestBoard()
	m := newTestMonitor(t, board, prometheus.NewRegistry())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	defer m.hub.stop()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, m.hub, 1)

	m.Publish(board.Snapshot(), phyloop.Status{TTI: 999, Processed: 1000})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got.Status == nil || got.Status.TTI != 999 {
		t.Fatalf("report status = %+v, want TTI 999", got.Status)
	}
	if got.ActiveCarriers != 2 || got.Carriers[0].Info.PCI != 7 {
		t.Fatalf("report = %+v", got)
	}
}

func TestStreamDropsClosedClients(t *testing.T) {
	m := newTestMonitor(t, newTestBoard(), prometheus.NewRegistry())
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	defer m.hub.stop()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	waitForClients(t, m.hub, 1)
	conn.Close()
	waitForClients(t, m.hub, 0)
}

func TestStreamRejectsNonGET(t *testing.T) {
	m := newTestMonitor(t, newTestBoard(), prometheus.NewRegistry())
	defer m.hub.stop()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/stream", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rr.Code)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	m := newTestMonitor(t, newTestBoard(), prometheus.NewRegistry())
	m.hub.stop()

	var pm phymetrics.PHYMetrics
	pm.SetActiveCarriers(1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			m.Publish(pm, phyloop.Status{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Publish blocked with a stopped hub")
	}
}
