package channel

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/ipfs-relay/internal/errdefs"
)

type inbound struct {
	id  string
	msg string
}

func newTestRegistry(t *testing.T) (*Registry, *websocket.Conn, <-chan inbound) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := NewRegistry(logger, JSONEncoder{})
	received := make(chan inbound, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = reg.Accept(w, r, func(id string, msg []byte) {
			received <- inbound{id: id, msg: string(msg)}
		})
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return reg, client, received
}

func TestRegistry_PushAndClose(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	reg, client, received := newTestRegistry(t)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))

	var in inbound
	select {
	case in = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not dispatched")
	}
	req.NotEmpty(in.id)
	req.Equal(`{"action":"ping"}`, in.msg)
	req.Equal(1, reg.Len())

	req.NoError(reg.Push(ctx, in.id, Adding("a.mp3")))

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	mt, payload, err := client.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.TextMessage, mt)
	req.JSONEq(`{"status":"ADDING","filename":"a.mp3"}`, string(payload))

	req.NoError(reg.Close(ctx, in.id))

	_, _, err = client.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	err = reg.Push(ctx, in.id, Complete())
	req.ErrorIs(err, ErrConnectionGone)
	req.ErrorIs(err, errdefs.ErrChannel)
	req.ErrorIs(reg.Close(ctx, in.id), ErrConnectionGone)
}

func TestRegistry_ClientDisconnect(t *testing.T) {
	req := require.New(t)
	reg, client, received := newTestRegistry(t)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("hello")))
	in := <-received

	req.NoError(client.Close())

	req.Eventually(func() bool { return reg.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	req.ErrorIs(reg.Push(context.Background(), in.id, Started()), errdefs.ErrChannel)
}

func TestRegistry_UnknownConnection(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := NewRegistry(logger, JSONEncoder{})

	require.ErrorIs(t, reg.Push(context.Background(), "nope", Started()), ErrConnectionGone)
	require.ErrorIs(t, reg.Close(context.Background(), "nope"), ErrConnectionGone)
}

func TestRegistry_CloseAll(t *testing.T) {
	req := require.New(t)
	reg, client, received := newTestRegistry(t)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte("hello")))
	<-received

	reg.CloseAll(context.Background())
	req.Zero(reg.Len())

	_ = client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := client.ReadMessage()
	req.Error(err)
}

func TestWriteDeadline(t *testing.T) {
	require.WithinDuration(t, time.Now().Add(writeWait), writeDeadline(context.Background()), time.Second)

	soon := time.Now().Add(time.Second)
	ctx, cancel := context.WithDeadline(context.Background(), soon)
	defer cancel()
	require.Equal(t, soon, writeDeadline(ctx))

	late, cancelLate := context.WithTimeout(context.Background(), time.Hour)
	defer cancelLate()
	require.WithinDuration(t, time.Now().Add(writeWait), writeDeadline(late), time.Second)
}

func TestRegistry_PushHonoursContextDeadline(t *testing.T) {
	req := require.New(t)
	reg, client, received := newTestRegistry(t)

	req.NoError(client.WriteMessage(websocket.TextMessage, []byte(`{"action":"ping"}`)))
	var in inbound
	select {
	case in = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("message was not dispatched")
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := reg.Push(ctx, in.id, Started())
	req.ErrorIs(err, errdefs.ErrChannel)
	req.NotErrorIs(err, ErrConnectionGone)
}
