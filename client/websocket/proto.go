package websocket

import (
	"encoding/json"
	"strings"

	"github.com/buger/jsonparser"
	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/common"
)

// Message is a decoded inbound frame. Channel and Event are empty if the
// payload doesn't carry them.
type Message struct {
	Type    common.MessageType
	Channel string
	Event   string

	// Payload is the second element of the frame, as is.
	Payload json.RawMessage
}

// Key returns the subscription key built from the message's routing fields.
func (m *Message) Key() Key {
	return Key{Channel: m.Channel, Event: m.Event, Type: m.Type}
}

// decodeMessage decodes a frame of the form [type, payload]. Only the
// routing fields are extracted; the payload is left for the subscriber.
func decodeMessage(data []byte) (*Message, error) {
	t, err := jsonparser.GetInt(data, "[0]")
	if err != nil {
		return nil, errors.Annotatef(err, "getting message type")
	}

	payload, _, _, err := jsonparser.Get(data, "[1]")
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return nil, errors.Annotatef(err, "getting payload of type %d", t)
	}

	msg := &Message{
		Type:    common.MessageType(t),
		Payload: json.RawMessage(payload),
	}

	// Routing fields are optional; if they're missing or aren't strings,
	// they're just left empty.
	msg.Channel, _ = jsonparser.GetString(payload, "channel")
	msg.Event, _ = jsonparser.GetString(payload, "event")

	return msg, nil
}

func encodeFrame(t common.MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal([]interface{}{int(t), payload})
	if err != nil {
		return nil, errors.Annotatef(err, "marshalling frame of type %d", t)
	}

	return data, nil
}

// subscribeFrame is the payload of a join or leave request.
type subscribeFrame struct {
	Type    common.MessageType `json:"type"`
	Channel string             `json:"channel"`
	Event   string             `json:"event"`
	Join    bool               `json:"join"`
}

func encodeSubscribe(key Key, join bool) ([]byte, error) {
	return encodeFrame(common.MessageTypeSubscription, &subscribeFrame{
		Type:    common.MessageTypeSubscription,
		Channel: key.Channel,
		Event:   key.Event,
		Join:    join,
	})
}

// loginFrame is the payload of a login request.
type loginFrame struct {
	Type      common.MessageType `json:"type"`
	PublicKey string             `json:"publicKey"`
	Timestamp int64              `json:"timestamp"`
	Nonce     int                `json:"nonce"`
	Signature string             `json:"signature"`
}

// resultPayload is the payload of both login results and subscription
// results.
type resultPayload struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func decodeResult(payload []byte) (*resultPayload, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty result payload")
	}

	res := &resultPayload{}
	if err := json.Unmarshal(payload, res); err != nil {
		return nil, errors.Annotatef(err, "unmarshalling result")
	}

	return res, nil
}

// parseResultMessage splits a subscription result message like
// "join|trade:BTCUSDT" into the action and the subscription.
func parseResultMessage(msg string) (action, sub string) {
	parts := strings.SplitN(msg, "|", 2)
	if len(parts) != 2 {
		return "", msg
	}

	return parts[0], parts[1]
}
