package rest

import (
	"context"
	"net/http"
	"time"

	"bitbucket.org/kleinnic74/pinphotos/events"
	"bitbucket.org/kleinnic74/pinphotos/logging"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebsocketHandler pushes the events of one pin to a websocket
type WebsocketHandler struct {
	events *events.Stream
}

func NewWebsocketHandler(stream *events.Stream) *WebsocketHandler {
	return &WebsocketHandler{events: stream}
}

func (h *WebsocketHandler) InitRoutes(r *mux.Router) {
	r.HandleFunc("/pins/{id}/ws", h.serve).Methods(http.MethodGet)
}

func (h *WebsocketHandler) serve(w http.ResponseWriter, r *http.Request) {
	pin := string(pinID(r))
	log, ctx := logging.FromWithNameAndFields(r.Context(), "ws", zap.String("pin", pin))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// the read pump only detects the peer going away
	go func() {
		defer cancel()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Debug("Websocket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	out := make(chan events.Event, 16)
	go func() {
		h.events.Listen(ctx, func(e events.Event) {
			if e.Pin != pin {
				return
			}
			select {
			case out <- e:
			default:
				log.Debug("Dropping event for slow websocket", zap.String("event", e.Name))
			}
		})
		cancel()
	}()

	// all writes happen here, the connection supports one concurrent writer
	log.Debug("Websocket connected")
	pings := time.NewTicker(pingPeriod)
	defer pings.Stop()
	for err == nil {
		select {
		case e := <-out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteJSON(e)
		case <-pings.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err = conn.WriteMessage(websocket.PingMessage, nil)
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != context.Canceled {
		log.Debug("Websocket write failed", zap.Error(err))
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	log.Debug("Websocket disconnected")
}
