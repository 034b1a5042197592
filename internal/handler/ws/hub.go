package ws

import (
	"context"
	"net/http"
	"sync"

	models "ShrimpCast/internal/domain/models"
	domrepo "ShrimpCast/internal/domain/repository"
	xlogger "ShrimpCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// Hub fans events out to websocket subscribers. Slow clients are dropped
// instead of blocking the writers that produced the event.
type Hub struct {
	logger     *xlogger.Logger
	register   chan *client
	unregister chan *client
	broadcast  chan models.Event
	clients    map[*client]struct{}

	mu   sync.RWMutex
	last map[models.EventType]models.Event

	upgrader websocket.Upgrader
}

func NewHub(logger *xlogger.Logger) *Hub {
	return &Hub{
		logger:     logger.Named("ws"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.Event, 256),
		clients:    make(map[*client]struct{}),
		last:       make(map[models.EventType]models.Event),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.logger.Debug("subscriber connected", xlogger.Int("clients", len(h.clients)))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case ev := <-h.broadcast:
			h.mu.Lock()
			h.last[ev.Type] = ev
			h.mu.Unlock()
			for c := range h.clients {
				if !c.wants(ev.Type) {
					continue
				}
				select {
				case c.send <- ev:
				default:
					h.logger.Warn("dropping slow subscriber")
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Broadcast never blocks; events are dropped when the hub is saturated.
func (h *Hub) Broadcast(ev models.Event) {
	select {
	case h.broadcast <- ev:
	default:
		h.logger.Warn("hub saturated, event dropped", xlogger.String("type", string(ev.Type)))
	}
}

// Latest returns the last event broadcast for each type.
func (h *Hub) Latest() []models.Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]models.Event, 0, len(h.last))
	for _, ev := range h.last {
		out = append(out, ev)
	}
	return out
}

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/events", h.serve)
}

func (h *Hub) serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	cl := newClient(h, conn)
	for _, ev := range h.Latest() {
		select {
		case cl.send <- ev:
		default:
		}
	}
	h.register <- cl
	go cl.writePump()
	go cl.readPump()
	return nil
}

var _ domrepo.Broadcaster = (*Hub)(nil)
