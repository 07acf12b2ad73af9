package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

// echoServer echoes every text message back.
func echoServer(t *testing.T) (*httptest.Server, string) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer ws.Close()

		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if err := ws.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))

	return ts, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestTransportSendReceive(t *testing.T) {
	ts, url := echoServer(t)
	defer ts.Close()

	c, err := NewStreamTransportConn(&StreamTransportParams{URL: url})
	if !assert.NoError(t, err) {
		return
	}

	states := make(chan TransportState, 16)
	c.OnStateChange(func(_ *StreamTransportConn, _, state TransportState, _ error) {
		states <- state
	})

	received := make(chan string, 1)
	c.OnRead(func(_ *StreamTransportConn, data []byte) {
		received <- string(data)
	})

	ctx := context.Background()

	// Not connected yet
	assert.Equal(t, ErrNotConnected, errors.Cause(c.Send(ctx, []byte("x"))))

	if !assert.NoError(t, c.Connect()) {
		return
	}

	expectState := func(want TransportState) {
		select {
		case got := <-states:
			assert.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Errorf("state %d wasn't reached", want)
		}
	}

	expectState(TransportStateConnecting)
	expectState(TransportStateConnected)

	assert.Equal(t, ErrConnLoopActive, errors.Cause(c.Connect()))

	assert.NoError(t, c.Send(ctx, []byte(`[151,{}]`)))

	select {
	case got := <-received:
		assert.Equal(t, `[151,{}]`, got)
	case <-time.After(time.Second):
		t.Error("echo wasn't received")
	}

	assert.NoError(t, c.Stop())
	expectState(TransportStateDisconnected)

	assert.Equal(t, ErrStopped, errors.Cause(c.Connect()))
}

func TestTransportSendCancelled(t *testing.T) {
	c, err := NewStreamTransportConn(&StreamTransportParams{URL: "ws://127.0.0.1:1"})
	if !assert.NoError(t, err) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Either the write loop reports the missing connection, or the context
	// is noticed first.
	err = errors.Cause(c.Send(ctx, []byte("x")))
	assert.True(t, err == ErrNotConnected || err == context.Canceled, "got %v", err)
}

func TestTransportEmptyURL(t *testing.T) {
	_, err := NewStreamTransportConn(&StreamTransportParams{})
	assert.Error(t, err)
}

func TestTransportWriteTimeout(t *testing.T) {
	// The server never reads, so writes block once the socket buffers fill.
	release := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Error(err)
			return
		}
		defer ws.Close()

		<-release
	}))
	defer ts.Close()
	defer close(release)

	c, err := NewStreamTransportConn(&StreamTransportParams{
		URL:          "ws" + strings.TrimPrefix(ts.URL, "http"),
		WriteTimeout: 100 * time.Millisecond,
	})
	if !assert.NoError(t, err) {
		return
	}

	states := make(chan TransportState, 16)
	c.OnStateChange(func(_ *StreamTransportConn, _, state TransportState, _ error) {
		states <- state
	})

	if !assert.NoError(t, c.Connect()) {
		return
	}

	deadline := time.After(2 * time.Second)
	for connected := false; !connected; {
		select {
		case s := <-states:
			connected = s == TransportStateConnected
		case <-deadline:
			t.Fatalf("not connected")
		}
	}

	data := make([]byte, 1<<20)
	sendErr := make(chan error, 1)

	go func() {
		for i := 0; i < 256; i++ {
			if err := c.Send(context.Background(), data); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- nil
	}()

	select {
	case err := <-sendErr:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("blocked write didn't time out")
	}

	// The failed write drops the connection.
	deadline = time.After(2 * time.Second)
	for disconnected := false; !disconnected; {
		select {
		case s := <-states:
			disconnected = s == TransportStateDisconnected
		case <-deadline:
			t.Fatalf("connection wasn't dropped")
		}
	}
}
