package orderbooks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/juju/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btcturk-go/btcturk-go/client/rest"
	"github.com/btcturk-go/btcturk-go/client/websocket"
	"github.com/btcturk-go/btcturk-go/common"
)

func dfs(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func level(price, amount string) common.PublicOrder {
	return common.PublicOrder{Price: dfs(price), Amount: dfs(amount)}
}

func TestOrderBook(t *testing.T) {
	ob := NewOrderBook(common.Book{
		PairSymbol: "BTCTRY",
		ChangeSet:  1,
		Bids:       []common.PublicOrder{level("100", "1"), level("90", "3")},
		Asks:       []common.PublicOrder{level("110", "4"), level("120", "5")},
	})

	err := ob.ApplyDelta(common.BookDelta{
		PrevChangeSet: 1,
		ChangeSet:     2,
		Bids: common.LevelDeltas{
			Set:    []common.PublicOrder{level("100", "8"), level("96", "6")},
			Remove: []decimal.Decimal{dfs("90")},
		},
	})
	if !assert.NoError(t, err, errors.ErrorStack(err)) {
		return
	}

	assert.Equal(t, common.Book{
		PairSymbol: "BTCTRY",
		ChangeSet:  2,
		Bids:       []common.PublicOrder{level("100", "8"), level("96", "6")},
		Asks:       []common.PublicOrder{level("110", "4"), level("120", "5")},
	}, ob.GetBook())

	// A delta for another change set isn't applied.
	err = ob.ApplyDelta(common.BookDelta{PrevChangeSet: 5, ChangeSet: 6})
	assert.Equal(t, common.ErrChangeSetMismatch, errors.Cause(err))
	assert.Equal(t, int64(2), ob.GetChangeSet())

	delta := ob.ApplyBook(common.Book{
		PairSymbol: "BTCTRY",
		ChangeSet:  3,
		Bids:       []common.PublicOrder{level("100", "8")},
		Asks:       []common.PublicOrder{level("110", "4"), level("120", "5")},
	})
	assert.Equal(t, int64(2), delta.PrevChangeSet)
	assert.Equal(t, int64(3), delta.ChangeSet)
	assert.Equal(t, []decimal.Decimal{dfs("96")}, delta.Bids.Remove)
	assert.True(t, delta.Asks.Empty())
}

// streamServer is a websocket server which hands received frames to rx and
// sends whatever is put to tx.
type streamServer struct {
	ts *httptest.Server
	rx chan []byte
	tx chan []byte
}

func newStreamServer(t *testing.T) *streamServer {
	s := &streamServer{
		rx: make(chan []byte, 16),
		tx: make(chan []byte, 16),
	}

	upgrader := gorilla.Upgrader{}

	s.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				s.rx <- data
			}
		}()

		for {
			select {
			case data := <-s.tx:
				if err := conn.WriteMessage(gorilla.TextMessage, data); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}))

	return s
}

func (s *streamServer) url() string {
	return "ws" + strings.TrimPrefix(s.ts.URL, "http")
}

func (s *streamServer) expectSubscribe(t *testing.T, join bool) {
	select {
	case data := <-s.rx:
		var frame []json.RawMessage
		require.NoError(t, json.Unmarshal(data, &frame))
		require.Len(t, frame, 2)

		var payload struct {
			Type    int    `json:"type"`
			Channel string `json:"channel"`
			Event   string `json:"event"`
			Join    bool   `json:"join"`
		}
		require.NoError(t, json.Unmarshal(frame[1], &payload))
		assert.Equal(t, 151, payload.Type)
		assert.Equal(t, "orderbook", payload.Channel)
		assert.Equal(t, "BTCTRY", payload.Event)
		assert.Equal(t, join, payload.Join)

	case <-time.After(1 * time.Second):
		t.Fatalf("no subscribe frame (join: %v)", join)
	}
}

func bookFrame(cs int, bids, asks string) []byte {
	return []byte(fmt.Sprintf(
		`[431,{"CS":%d,"PS":"BTCTRY","AO":%s,"BO":%s,"channel":"orderbook","event":"BTCTRY","type":431}]`,
		cs, asks, bids,
	))
}

func TestOrderBookWatcher(t *testing.T) {
	restTS := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orderbook", r.URL.Path)
		assert.Equal(t, "BTCTRY", r.URL.Query().Get("pairSymbol"))
		w.Write([]byte(`{"success":true,"code":0,"data":{"timestamp":1600000000000.0,"bids":[["100","1"],["99","2"]],"asks":[["101","1"]]}}`))
	}))
	defer restTS.Close()

	srv := newStreamServer(t)
	defer srv.ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := websocket.NewClient(&websocket.ClientParams{
		URL:           srv.url(),
		ReconnectOpts: &websocket.ReconnectOpts{},
	})
	require.NoError(t, err)
	defer c.Stop()

	require.NoError(t, c.Connect(ctx))

	getter, err := NewSnapshotGetterREST(rest.NewRESTClient(&rest.RESTClientParams{URL: restTS.URL}), "BTCTRY", 0)
	require.NoError(t, err)

	w, err := NewOrderBookWatcher(ctx, OrderBookWatcherParams{
		PairSymbol:     "BTCTRY",
		StreamClient:   c,
		SnapshotGetter: getter,
	})
	require.NoError(t, err, errors.ErrorStack(err))
	assert.Equal(t, "BTCTRY", w.PairSymbol())

	srv.expectSubscribe(t, true)

	// The REST snapshot is there before any push.
	seeded := w.GetBook()
	assert.Equal(t, []common.PublicOrder{level("100", "1"), level("99", "2")}, seeded.Bids)
	assert.Equal(t, []common.PublicOrder{level("101", "1")}, seeded.Asks)

	type update struct {
		book  common.Book
		delta common.BookDelta
	}
	updates := make(chan update, 8)
	w.OnUpdate(func(book common.Book, delta common.BookDelta) {
		updates <- update{book, delta}
	})

	srv.tx <- bookFrame(10,
		`[{"P":"100","A":"1.5"},{"P":"99","A":"2"}]`,
		`[{"P":"101","A":"1"},{"P":"102","A":"3"}]`,
	)

	select {
	case u := <-updates:
		assert.Equal(t, int64(0), u.delta.PrevChangeSet)
		assert.Equal(t, int64(10), u.delta.ChangeSet)
		assert.Equal(t, []common.PublicOrder{level("100", "1.5")}, u.delta.Bids.Set)
		assert.Empty(t, u.delta.Bids.Remove)
		assert.Equal(t, []common.PublicOrder{level("102", "3")}, u.delta.Asks.Set)
		assert.Equal(t, int64(10), u.book.ChangeSet)
		assert.Equal(t, "BTCTRY", u.book.PairSymbol)
	case <-time.After(1 * time.Second):
		t.Fatalf("no update")
	}

	// The same levels under a new change set don't make an update.
	srv.tx <- bookFrame(11,
		`[{"P":"100","A":"1.5"},{"P":"99","A":"2"}]`,
		`[{"P":"101","A":"1"},{"P":"102","A":"3"}]`,
	)
	// A malformed book is dropped.
	srv.tx <- []byte(`[431,{"CS":"x","channel":"orderbook","event":"BTCTRY","type":431}]`)

	srv.tx <- bookFrame(12,
		`[{"P":"99","A":"2"}]`,
		`[{"P":"101","A":"1"},{"P":"102","A":"3"}]`,
	)

	select {
	case u := <-updates:
		assert.Equal(t, int64(11), u.delta.PrevChangeSet)
		assert.Equal(t, int64(12), u.delta.ChangeSet)
		assert.Equal(t, []decimal.Decimal{dfs("100")}, u.delta.Bids.Remove)
		assert.True(t, u.delta.Asks.Empty())
	case <-time.After(1 * time.Second):
		t.Fatalf("no update")
	}

	require.NoError(t, w.Stop(ctx))
	srv.expectSubscribe(t, false)
}
