// Package wsview bridges the controller's view contract to browsers over a
// websocket. Every refresh frame is broadcast to all connected clients, and
// point clicks flow back through the frame's OnPointClick capability.
package wsview

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mutamap/core-go/internal/controller"
	"mutamap/core-go/internal/metrics"
	"mutamap/core-go/internal/record"
	"mutamap/core-go/internal/store"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 8
)

// wireFrame is the JSON shape a browser client receives on every refresh.
type wireFrame struct {
	Type           string          `json:"type"`
	DatasetID      string          `json:"dataset_id"`
	Provenance     string          `json:"provenance"`
	Records        []record.Record `json:"records"`
	SelectedIndex  int             `json:"selected_index"`
	Selected       *record.Record  `json:"selected,omitempty"`
	SelectedColor  string          `json:"selected_color,omitempty"`
	ColorDomainMin float64         `json:"color_domain_min"`
	ColorDomainMax float64         `json:"color_domain_max"`
	APICalls       int64           `json:"api_calls"`
}

// clientMessage is what a browser sends back: a point click or a clear.
type clientMessage struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type client struct {
	conn *websocket.Conn
	send chan wireFrame
}

// Hub implements controller.View for every connected browser at once.
type Hub struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu        sync.Mutex
	clients   map[*client]struct{}
	lastFrame *wireFrame
	onClick   func(index int)
}

func NewHub(log zerolog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		log:     log,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-origin; cross-origin embedding is not
			// a supported deployment.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Update broadcasts the refresh frame to every connected client. Slow
// clients get disconnected rather than stalling the refresh cycle.
func (h *Hub) Update(frame controller.Frame) error {
	wf := toWire(frame)

	h.mu.Lock()
	h.lastFrame = &wf
	h.onClick = frame.OnPointClick
	for c := range h.clients {
		select {
		case c.send <- wf:
		default:
			h.dropLocked(c)
		}
	}
	h.mu.Unlock()
	return nil
}

// ServeHTTP upgrades the connection, replays the latest frame so a new
// client is immediately consistent, then relays click messages.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan wireFrame, sendBufferSize)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.lastFrame != nil {
		c.send <- *h.lastFrame
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(n)

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *client) {
	for wf := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(wf); err != nil {
			h.log.Debug().Err(err).Msg("websocket write failed")
			h.remove(c)
			return
		}
	}
	_ = c.conn.Close()
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.mu.Lock()
		onClick := h.onClick
		h.mu.Unlock()
		if onClick == nil {
			continue
		}

		switch msg.Type {
		case "select":
			onClick(msg.Index)
		case "deselect":
			onClick(store.NoSelection)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	n := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetLiveClients(n)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	_ = c.conn.Close()
}

// ClientCount reports connected browsers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func toWire(frame controller.Frame) wireFrame {
	min, max := frame.Scale.Domain()
	wf := wireFrame{
		Type:           "refresh",
		DatasetID:      frame.DatasetID.String(),
		Provenance:     string(frame.Provenance),
		Records:        frame.Records,
		SelectedIndex:  frame.SelectedIndex,
		ColorDomainMin: min,
		ColorDomainMax: max,
		APICalls:       frame.APICalls,
	}
	for i := range frame.Records {
		if frame.Records[i].Index == frame.SelectedIndex {
			wf.Selected = &frame.Records[i]
			wf.SelectedColor = frame.Scale.Hex(frame.Records[i].MutationValue)
			break
		}
	}
	return wf
}
