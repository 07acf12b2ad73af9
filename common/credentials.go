package common

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/juju/errors"
)

// Credentials holds the API key pair issued by the exchange. PrivateKey is
// base64-encoded, exactly as it is shown in the exchange's account settings.
type Credentials struct {
	PublicKey  string
	PrivateKey string
}

// Empty returns true if no public key is set; such credentials can't be
// used for signing.
func (c *Credentials) Empty() bool {
	return c == nil || c.PublicKey == ""
}

// Sign returns base64(HMAC-SHA256(base64decode(PrivateKey), PublicKey+suffix)).
//
// The websocket login uses the nonce as the suffix, the REST API uses the
// millisecond timestamp sent in the X-Stamp header.
func (c *Credentials) Sign(suffix string) (string, error) {
	if c.Empty() {
		return "", errors.New("no credentials")
	}

	key, err := base64.StdEncoding.DecodeString(c.PrivateKey)
	if err != nil {
		return "", errors.Annotatef(err, "base64-decoding the private key")
	}

	h := hmac.New(sha256.New, key)
	h.Write([]byte(c.PublicKey + suffix))

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
