package websocket

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/btcturk-go/btcturk-go/common"
)

// recorder collects the keys messages were delivered to.
type recorder struct {
	got []string
}

func (r *recorder) listener(name string) *listener {
	return &listener{
		cb: func(msg *Message) {
			r.got = append(r.got, name)
		},
	}
}

func newTestDispatcher(reg *registry, opts *DispatchOpts) *dispatcher {
	log := logrus.New()
	log.SetLevel(logrus.DebugLevel)

	return newDispatcher(reg, opts, log)
}

func mustDecode(t *testing.T, frame string) *Message {
	msg, err := decodeMessage([]byte(frame))
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

func TestDispatchExactMatch(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}

	btc := mustKey(t, "trade", "BTCUSDT")
	eth := mustKey(t, "trade", "ETHUSDT")

	reg.add(btc, rec.listener("btc"))
	reg.add(eth, rec.listener("eth"))

	d := newTestDispatcher(reg, nil)

	n := d.dispatch(mustDecode(t, `[422,{"channel":"trade","event":"ETHUSDT","type":422,"P":"1"}]`))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"eth"}, rec.got)
}

func TestDispatchTypeFallback(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}

	d := newTestDispatcher(reg, nil)

	// No routing fields, and a single key of the type: delivered there
	reg.add(mustKey(t, "ticker", "BTCUSDT"), rec.listener("ticker"))

	n := d.dispatch(mustDecode(t, `[402,{"PS":"BTCUSDT","LA":"100"}]`))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"ticker"}, rec.got)

	// Two keys of the type: ambiguous, nothing is delivered
	reg.add(mustKey(t, "ticker", "ETHUSDT"), rec.listener("ticker-eth"))
	rec.got = nil

	n = d.dispatch(mustDecode(t, `[402,{"PS":"BTCUSDT","LA":"100"}]`))
	assert.Equal(t, 0, n)
	assert.Empty(t, rec.got)
}

func TestDispatchMultiTypeRoutes(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}

	orders := mustKey(t, "U", "OrderUpdate")
	reg.add(orders, rec.listener("orders"))

	d := newTestDispatcher(reg, nil)

	// Inactive primaries don't get satellite frames
	n := d.dispatch(mustDecode(t, `[451,{"type":451,"id":1,"pairId":0}]`))
	assert.Equal(t, 0, n)

	reg.setActive(orders, true)

	n = d.dispatch(mustDecode(t, `[451,{"type":451,"id":1,"pairId":0}]`))
	assert.Equal(t, 1, n)

	n = d.dispatch(mustDecode(t, `[452,{"type":452,"id":1,"pairId":0}]`))
	assert.Equal(t, 1, n)

	// The primary type itself arrives without routing fields
	n = d.dispatch(mustDecode(t, `[453,{"type":453,"id":1,"pairId":0}]`))
	assert.Equal(t, 1, n)

	assert.Equal(t, []string{"orders", "orders", "orders"}, rec.got)
}

func TestDispatchExactMatchPrecedence(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}

	// A satellite routed to two primaries; one key also matches the frame
	// exactly.
	exact := Key{Channel: "custom", Event: "x", Type: 500}
	primaryA := Key{Channel: "custom", Event: "a", Type: 600}
	primaryB := Key{Channel: "custom", Event: "b", Type: 700}

	reg.add(exact, rec.listener("exact"))
	reg.add(primaryA, rec.listener("a"))
	reg.add(primaryB, rec.listener("b"))
	reg.setActive(primaryA, true)
	reg.setActive(primaryB, true)

	d := newTestDispatcher(reg, &DispatchOpts{
		MultiTypeRoutes: map[common.MessageType][]common.MessageType{
			600: {500},
			700: {500},
		},
	})

	n := d.dispatch(mustDecode(t, `[500,{"channel":"custom","event":"x"}]`))
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"exact"}, rec.got)

	// Without the exact match, both primaries get it, as well as the single
	// key of the type.
	rec.got = nil
	n = d.dispatch(mustDecode(t, `[500,{"channel":"custom","event":"y"}]`))
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"exact", "a", "b"}, rec.got)
}

func TestDispatchIgnored(t *testing.T) {
	reg := newRegistry()
	rec := &recorder{}

	reg.add(Key{Channel: "trade", Event: "BTCUSDT", Type: common.MessageTypeTradeSingleList}, rec.listener("list"))
	reg.add(mustKey(t, "U", "OrderUpdate"), rec.listener("orders"))
	reg.setActive(mustKey(t, "U", "OrderUpdate"), true)

	d := newTestDispatcher(reg, nil)

	for _, frame := range []string{
		`[991,{"type":991,"current":"5.1.0"}]`,
		`[114,{"type":114,"ok":true,"message":"success"}]`,
		`[454,{"type":454,"id":1}]`,
		`[421,{"channel":"trade","event":"BTCUSDT","type":421}]`,
		`[100,{"ok":true,"message":"join|trade:BTCUSDT"}]`,
		`[100,{"ok":false,"message":"leave|trade:BTCUSDT"}]`,
	} {
		assert.Equal(t, 0, d.dispatch(mustDecode(t, frame)), frame)
	}

	assert.Empty(t, rec.got)
}

func TestDecodeMessage(t *testing.T) {
	msg, err := decodeMessage([]byte(`[431,{"channel":"orderbook","event":"BTCUSDT","type":431,"CS":12}]`))
	if assert.NoError(t, err) {
		assert.Equal(t, common.MessageTypeOrderBookFull, msg.Type)
		assert.Equal(t, "orderbook", msg.Channel)
		assert.Equal(t, "BTCUSDT", msg.Event)
		assert.Equal(t, Key{Channel: "orderbook", Event: "BTCUSDT", Type: 431}, msg.Key())
	}

	// Non-string routing fields are left empty
	msg, err = decodeMessage([]byte(`[402,{"channel":5,"PS":"BTCUSDT"}]`))
	if assert.NoError(t, err) {
		assert.Equal(t, "", msg.Channel)
		assert.Equal(t, "", msg.Event)
	}

	_, err = decodeMessage([]byte(`{"type":402}`))
	assert.Error(t, err)

	_, err = decodeMessage([]byte(`["x",{}]`))
	assert.Error(t, err)
}

func TestParseResultMessage(t *testing.T) {
	action, sub := parseResultMessage("join|trade:BTCUSDT")
	assert.Equal(t, "join", action)
	assert.Equal(t, "trade:BTCUSDT", sub)

	action, sub = parseResultMessage("something")
	assert.Equal(t, "", action)
	assert.Equal(t, "something", sub)
}

func TestEncodeSubscribe(t *testing.T) {
	data, err := encodeSubscribe(Key{Channel: "trade", Event: "BTCUSDT", Type: 422}, true)
	if assert.NoError(t, err) {
		assert.JSONEq(t, `[151,{"type":151,"channel":"trade","event":"BTCUSDT","join":true}]`, string(data))
	}

	data, err = encodeSubscribe(Key{Channel: "U", Event: "OrderUpdate", Type: 453}, false)
	if assert.NoError(t, err) {
		assert.JSONEq(t, `[151,{"type":151,"channel":"U","event":"OrderUpdate","join":false}]`, string(data))
	}
}
