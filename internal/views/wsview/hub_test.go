package wsview

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mutamap/core-go/internal/colorscale"
	"mutamap/core-go/internal/controller"
	"mutamap/core-go/internal/record"
)

func testFrame(clicked chan int) controller.Frame {
	return controller.Frame{
		DatasetID:     uuid.New(),
		Provenance:    "generated",
		Records:       []record.Record{{Index: 1000, MutationValue: 0.5}},
		SelectedIndex: 1000,
		Scale:         colorscale.New(0, 1),
		OnPointClick:  func(index int) { clicked <- index },
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_BroadcastsFramesToAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c1 := dial(t, srv)
	defer c1.Close()
	c2 := dial(t, srv)
	defer c2.Close()

	waitForClients(t, hub, 2)

	clicked := make(chan int, 1)
	if err := hub.Update(testFrame(clicked)); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, conn := range []*websocket.Conn{c1, c2} {
		var wf wireFrame
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&wf); err != nil {
			t.Fatalf("read: %v", err)
		}
		if wf.Type != "refresh" || wf.SelectedIndex != 1000 {
			t.Fatalf("unexpected frame: %+v", wf)
		}
		if wf.Selected == nil || wf.SelectedColor == "" {
			t.Fatalf("expected selected record and color in frame: %+v", wf)
		}
	}
}

func TestHub_LateClientGetsLastFrame(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	clicked := make(chan int, 1)
	if err := hub.Update(testFrame(clicked)); err != nil {
		t.Fatalf("update: %v", err)
	}

	conn := dial(t, srv)
	defer conn.Close()

	var wf wireFrame
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&wf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(wf.Records) != 1 {
		t.Fatalf("late joiner must receive the current frame, got %+v", wf)
	}
}

func TestHub_RelaysClicks(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()
	waitForClients(t, hub, 1)

	clicked := make(chan int, 1)
	if err := hub.Update(testFrame(clicked)); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := conn.WriteJSON(clientMessage{Type: "select", Index: 1000}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case got := <-clicked:
		if got != 1000 {
			t.Fatalf("expected click index 1000, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("click was not relayed")
	}
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
