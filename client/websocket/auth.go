package websocket

import (
	"context"
	"strconv"

	"github.com/juju/errors"

	"github.com/btcturk-go/btcturk-go/common"
)

// pendingAuth is a login request sent over the current connection which
// hasn't got a result yet. Only one login can be in flight; Login calls made
// meanwhile wait for the same result.
type pendingAuth struct {
	waiters []chan<- error
}

func (p *pendingAuth) resolve(err error) {
	for _, w := range p.waiters {
		w <- err
	}
	p.waiters = nil
}

// newLoginFrame signs the login request with the nonce.
func newLoginFrame(creds *common.Credentials, nonce int) ([]byte, error) {
	signature, err := creds.Sign(strconv.Itoa(nonce))
	if err != nil {
		return nil, errors.Trace(err)
	}

	return encodeFrame(common.MessageTypeUserLogin, &loginFrame{
		Type:      common.MessageTypeUserLogin,
		PublicKey: creds.PublicKey,
		Timestamp: int64(common.NowMillis()),
		Nonce:     nonce,
		Signature: signature,
	})
}

// Login opens the connection (if needed) and waits until the exchange
// accepts the credentials. The client logs in by itself after every
// reconnect; Login is only needed to wait for it, and to learn the result.
//
// The returned error is *AuthError if the exchange rejected the login,
// ErrConnectionLost if the connection dropped before the result arrived.
func (c *Client) Login(ctx context.Context) error {
	if c.params.Credentials.Empty() {
		return errors.Trace(ErrNoCredentials)
	}

	if err := c.Connect(ctx); err != nil {
		return errors.Trace(err)
	}

	result := make(chan error, 1)

	c.internalEvents <- internalEvent{
		reqLogin: &reqLogin{
			result: result,
		},
	}

	select {
	case err := <-result:
		return errors.Trace(err)
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

// NOTE: handleLoginRequest should only be called from the eventLoop.
func (c *Client) handleLoginRequest(req *reqLogin) {
	switch {
	case c.stopped:
		req.result <- errors.Trace(ErrStopped)
		return
	case c.authenticated:
		req.result <- nil
		return
	case c.state != ConnStateOpen:
		req.result <- errors.Trace(ErrConnectionLost)
		return
	}

	if c.pendingAuth == nil {
		// The previous login over this connection failed; try again.
		c.startLogin()
	}

	if c.pendingAuth == nil {
		// startLogin failed; the error was logged.
		req.result <- errors.Trace(&AuthError{Message: "login request wasn't sent"})
		return
	}

	c.pendingAuth.waiters = append(c.pendingAuth.waiters, req.result)
}

// startLogin sends the login request; the result is handled by
// handleLoginResult.
//
// NOTE: startLogin should only be called from the eventLoop.
func (c *Client) startLogin() {
	data, err := newLoginFrame(c.params.Credentials, c.params.Nonce)
	if err != nil {
		c.log.WithError(err).Error("Failed to build login request")
		return
	}

	if err := c.transport.Send(context.Background(), data); err != nil {
		c.log.WithError(err).Warn("Failed to send login request")
		return
	}

	c.log.Debug("Login request sent")
	c.pendingAuth = &pendingAuth{}
}

// handleLoginResult resolves the pending login. Once logged in, private
// subscriptions are restored.
//
// NOTE: handleLoginResult should only be called from the eventLoop.
func (c *Client) handleLoginResult(msg *Message) {
	pa := c.pendingAuth
	c.pendingAuth = nil

	res, err := decodeResult(msg.Payload)
	if err != nil {
		c.log.WithError(err).Warn("Malformed login result")
		pa.resolve(errors.Trace(&AuthError{Message: "malformed login result"}))
		return
	}

	if !res.OK {
		authErr := &AuthError{Message: res.Message}
		c.log.WithField("message", res.Message).Error("Login rejected")
		pa.resolve(errors.Trace(authErr))

		for _, key := range c.reg.keys() {
			if key.IsPrivate() {
				c.notifyListenersErr(key, authErr)
			}
		}
		return
	}

	c.log.Info("Logged in")
	c.authenticated = true
	pa.resolve(nil)

	c.replay(true)
}
