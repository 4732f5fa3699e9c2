package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Expl0dingBanana/aferobridge/internal/events"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsSendBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The add-on listens on the local network only.
	CheckOrigin: func(*http.Request) bool { return true },
}

type eventView struct {
	Type       string    `json:"type"`
	DeviceID   string    `json:"deviceId,omitempty"`
	Changed    []string  `json:"changed,omitempty"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// events streams resource and connection events to a websocket client until
// it disconnects. Slow clients lose events rather than stalling the stream.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	send := make(chan eventView, wsSendBuffer)
	unsubscribe := a.bridge.Subscribe(func(ev events.Event) {
		view := eventView{
			Type:       string(ev.Type),
			DeviceID:   ev.DeviceID,
			Changed:    ev.Changed,
			ReceivedAt: ev.ReceivedAt,
		}
		select {
		case send <- view:
		default:
		}
	},
		events.ResourceAdded, events.ResourceUpdated, events.ResourceVersion,
		events.ResourceDeleted, events.UpdateResponse,
		events.Connected, events.Disconnected, events.Reconnected,
		events.InvalidAuth,
	)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case view := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		}
	}
}
