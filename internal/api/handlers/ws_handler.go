package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/metrics"
	"github.com/yoockh/dinedesk/internal/models"
	"github.com/yoockh/dinedesk/internal/services"
	"github.com/yoockh/dinedesk/internal/utils"
)

const (
	wsReadTimeout = 60 * time.Second
	wsPingEvery   = 30 * time.Second
	wsMaxMessage  = 64 << 10
)

// WSHandler serves the web chat widget. Customer messages go through the
// assistant pipeline; staff replies for the thread arrive over Redis pub/sub.
type WSHandler struct {
	assistant services.AssistantService
	redis     *redis.Client
	metrics   *metrics.Metrics
	log       *logrus.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler: an empty allowedOrigins list accepts any origin.
func NewWSHandler(assistant services.AssistantService, rdb *redis.Client, m *metrics.Metrics, log *logrus.Logger, allowedOrigins []string) *WSHandler {
	if log == nil {
		log = logrus.New()
	}
	allow := map[string]struct{}{}
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allow[strings.ToLower(o)] = struct{}{}
		}
	}
	return &WSHandler{
		assistant: assistant,
		redis:     rdb,
		metrics:   m,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allow) == 0 {
					return true
				}
				_, ok := allow[strings.ToLower(r.Header.Get("Origin"))]
				return ok
			},
		},
	}
}

type wsClientMsg struct {
	Type    string         `json:"type"` // message|ping
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

type wsServerMsg struct {
	Type     string                  `json:"type"` // ready|reply|staff_message|error|pong
	ThreadID string                  `json:"thread_id,omitempty"`
	Result   *services.ProcessResult `json:"result,omitempty"`
	Message  *events.ThreadMessage   `json:"message,omitempty"`
	Error    *APIError               `json:"error,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(v)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
}

func wsError(err error) *APIError {
	var ae *utils.AppError
	if errors.As(err, &ae) {
		return &APIError{Code: ae.Code, Reason: ae.Reason, Message: ae.Message}
	}
	return &APIError{Code: utils.CodeInternal, Message: "internal error"}
}

func (h *WSHandler) Chat(c *gin.Context) {
	const op = "WSHandler.Chat"

	restaurantID := c.Param("restaurant_id")
	if _, err := uuid.Parse(restaurantID); err != nil {
		badRequest(c, op, "invalid_restaurant_id", "restaurant_id must be a UUID")
		return
	}
	customerID := c.Query("customer_id")
	threadID := c.Query("thread_id")
	if threadID == "" {
		threadID = uuid.NewString()
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return // upgrade already wrote the response
	}
	defer conn.Close()
	conn.SetReadLimit(wsMaxMessage)

	h.metrics.WebsocketOpened()
	defer h.metrics.WebsocketClosed()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	log := h.log.WithFields(logrus.Fields{"restaurant_id": restaurantID, "thread_id": threadID})

	pubsub := h.redis.Subscribe(ctx, events.ThreadChannel(restaurantID, threadID))
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		log.WithError(err).Warn("thread subscription failed")
		_ = wc.writeJSON(wsServerMsg{Type: "error", Error: &APIError{Code: utils.CodeUnavailable, Message: "live updates unavailable"}})
		return
	}

	if err := wc.writeJSON(wsServerMsg{Type: "ready", ThreadID: threadID}); err != nil {
		return
	}

	// reader: customer -> assistant
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})

		for {
			_, data, rerr := conn.ReadMessage()
			if rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

			var msg wsClientMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				_ = wc.writeJSON(wsServerMsg{Type: "error", Error: &APIError{Code: utils.CodeInvalidArgument, Reason: "invalid_json", Message: "invalid json"}})
				continue
			}

			switch msg.Type {
			case "message":
				res, err := h.assistant.Process(ctx, services.ProcessInput{
					RequestID:    uuid.NewString(),
					RestaurantID: restaurantID,
					CustomerID:   customerID,
					ThreadID:     threadID,
					SenderID:     threadID,
					Channel:      models.ChannelChat,
					Message:      msg.Message,
					Context:      msg.Context,
				})
				if err != nil {
					_ = wc.writeJSON(wsServerMsg{Type: "error", ThreadID: threadID, Error: wsError(err)})
					continue
				}
				if err := wc.writeJSON(wsServerMsg{Type: "reply", ThreadID: threadID, Result: res}); err != nil {
					return
				}
			case "ping":
				_ = wc.writeJSON(wsServerMsg{Type: "pong"})
			default:
				_ = wc.writeJSON(wsServerMsg{Type: "error", Error: &APIError{Code: utils.CodeInvalidArgument, Reason: "unknown_type", Message: "unknown message type"}})
			}
		}
	}()

	// writer: staff replies -> customer
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	staff := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case m, ok := <-staff:
			if !ok {
				return
			}
			var tm events.ThreadMessage
			if err := json.Unmarshal([]byte(m.Payload), &tm); err != nil {
				log.WithError(err).Warn("dropping malformed thread message")
				continue
			}
			if err := wc.writeJSON(wsServerMsg{Type: "staff_message", ThreadID: threadID, Message: &tm}); err != nil {
				return
			}
		}
	}
}
