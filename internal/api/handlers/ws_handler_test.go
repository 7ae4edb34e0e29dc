package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/dinedesk/internal/events"
	"github.com/yoockh/dinedesk/internal/models"
)

func TestChatWebsocket(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	fa := &fakeAssistant{}
	h := NewWSHandler(fa, rdb, nil, nil, nil)
	r := gin.New()
	r.GET("/ws/chat/:restaurant_id", h.Chat)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat/" + rid + "?thread_id=t1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ready wsServerMsg
	require.NoError(t, conn.ReadJSON(&ready))
	assert.Equal(t, "ready", ready.Type)
	assert.Equal(t, "t1", ready.ThreadID)

	require.NoError(t, conn.WriteJSON(wsClientMsg{Type: "message", Message: "do you have vegan options?"}))
	var reply wsServerMsg
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "reply", reply.Type)
	require.NotNil(t, reply.Result)
	assert.Equal(t, "echo: do you have vegan options?", reply.Result.Reply)
	assert.Equal(t, models.ChannelChat, fa.last().Channel)
	assert.Equal(t, "t1", fa.last().ThreadID)

	require.NoError(t, conn.WriteJSON(wsClientMsg{Type: "message", Message: ""}))
	var bad wsServerMsg
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, "error", bad.Type)
	assert.Equal(t, "empty_message", bad.Error.Reason)

	pub := events.NewRedisPublisher(rdb, "")
	require.NoError(t, pub.NotifyThread(context.Background(), rid, "t1", events.ThreadMessage{Role: "staff", Text: "We saved you a window seat"}))
	var staff wsServerMsg
	require.NoError(t, conn.ReadJSON(&staff))
	assert.Equal(t, "staff_message", staff.Type)
	require.NotNil(t, staff.Message)
	assert.Equal(t, "We saved you a window seat", staff.Message.Text)
}

func TestChatWebsocket_RejectsBadRestaurant(t *testing.T) {
	h := NewWSHandler(&fakeAssistant{}, nil, nil, nil, nil)
	r := gin.New()
	r.GET("/ws/chat/:restaurant_id", h.Chat)

	w := do(r, "GET", "/ws/chat/not-a-uuid", "")
	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "invalid_restaurant_id", decode(t, w)["reason"])
}

func TestCheckOrigin(t *testing.T) {
	h := NewWSHandler(&fakeAssistant{}, nil, nil, nil, []string{"https://trattoria.example"})
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Origin", "https://TRATTORIA.example")
	assert.True(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.upgrader.CheckOrigin(req))
}
