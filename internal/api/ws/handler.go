package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/widgetd/internal/domain/instance"
	"github.com/GriffinCanCode/widgetd/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/widgetd/internal/shared/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// events buffered per connection before new ones are dropped
	sendBuffer = 64
)

// Subscriber is the part of the instance service the stream needs
type Subscriber interface {
	ListenEvent(fn instance.EventListener) (instance.ListenerID, error)
	UnlistenEvent(id instance.ListenerID) error
}

// Handler streams lifecycle events to WebSocket clients
type Handler struct {
	events   Subscriber
	logger   *zap.Logger
	metrics  *monitoring.Metrics
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket handler
func NewHandler(events Subscriber, logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		events:  events,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleConnection upgrades the request and forwards lifecycle events until
// the client goes away. The optional widget query keeps only events of that
// widget id.
func (h *Handler) HandleConnection(c *gin.Context) {
	widgetID := c.Query("widget")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	send := make(chan types.LifecycleEvent, sendBuffer)
	lid, err := h.events.ListenEvent(func(ev types.LifecycleEvent) {
		if widgetID != "" && ev.WidgetID != widgetID {
			return
		}
		select {
		case send <- ev:
		default:
			h.logger.Debug("Dropping event for slow client", zap.String("instance_id", ev.InstanceID))
		}
	})
	if err != nil {
		h.logger.Error("Failed to subscribe stream", zap.Error(err))
		return
	}
	defer h.events.UnlistenEvent(lid)

	closed := make(chan struct{})
	go h.readPump(conn, closed)
	h.writePump(conn, send, closed)
}

// readPump discards client frames and notices when the peer closes
func (h *Handler) readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(conn *websocket.Conn, send <-chan types.LifecycleEvent, closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case ev := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
