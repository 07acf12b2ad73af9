/*
Package rest provides a client for the exchange's REST API.

Every call goes through a single executor which signs private requests and
retries rate-limited ones: when the exchange answers with TOO_MANY_REQUESTS,
the client installs a shared RetryGate for the period given in the response,
and all requests of that client wait for the gate before going out again.
*/
package rest // import "github.com/btcturk-go/btcturk-go/client/rest"

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/btcturk-go/btcturk-go/common"
)

const (
	DefaultURL = "https://api.btcturk.com/api"

	// DefaultMaxRetries is how many times a rate-limited request is
	// re-issued before RateLimitExceeded is returned.
	DefaultMaxRetries = 3
)

// RESTClient is the REST API client. It is safe for concurrent use.
type RESTClient struct {
	params RESTClientParams

	httpClient *http.Client
	log        logrus.FieldLogger

	gate *RetryGate

	stopOnce sync.Once
}

// RESTClientParams contains params for creating a REST client.
type RESTClientParams struct {
	// URL is the API URL to use. If empty, production will be used
	// (DefaultURL).
	URL string

	// Credentials are needed for account and order endpoints only.
	Credentials *common.Credentials

	// MaxRetries bounds re-issuing of rate-limited requests. Zero means
	// DefaultMaxRetries; a negative value disables retrying.
	MaxRetries int

	// RetryDelay is used when a rate-limit response doesn't say how long to
	// wait. Defaults to DefaultRetryDelay.
	RetryDelay time.Duration

	// RateLimiter, if set, paces the outgoing requests on the client side.
	RateLimiter *rate.Limiter

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger

	// after is used for gate timers; tests replace it.
	after func(d time.Duration) <-chan time.Time
}

// NewRESTClient creates a new REST client with the given params.
func NewRESTClient(params *RESTClientParams) *RESTClient {
	if params == nil {
		params = &RESTClientParams{}
	}

	c := &RESTClient{
		params: *params,
	}

	c.params.URL = strings.TrimRight(c.params.URL, "/")
	if c.params.URL == "" {
		c.params.URL = DefaultURL
	}

	switch {
	case c.params.MaxRetries == 0:
		c.params.MaxRetries = DefaultMaxRetries
	case c.params.MaxRetries < 0:
		c.params.MaxRetries = 0
	}

	if c.params.RetryDelay <= 0 {
		c.params.RetryDelay = DefaultRetryDelay
	}

	c.httpClient = c.params.HTTPClient
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}

	c.log = c.params.Logger
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.log = c.log.WithField("component", "rest")

	c.gate = newRetryGate(c.params.after)

	return c
}

// URL returns the API URL the client talks to.
func (c *RESTClient) URL() string {
	return c.params.URL
}

// RetryGate returns the client's shared cool-down gate.
func (c *RESTClient) RetryGate() *RetryGate {
	return c.gate
}

// Stop makes all requests waiting for a RetryGate, and all future requests,
// fail with ErrStopped.
func (c *RESTClient) Stop() {
	c.stopOnce.Do(c.gate.stop)
}

// Get performs a GET request; see Execute.
func (c *RESTClient) Get(ctx context.Context, path string, query map[string]string, result interface{}) error {
	return c.Execute(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, result)
}

// Post performs a POST request with a JSON body; see Execute.
func (c *RESTClient) Post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.Execute(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, result)
}

// Delete performs a DELETE request; see Execute.
func (c *RESTClient) Delete(ctx context.Context, path string, query map[string]string, result interface{}) error {
	return c.Execute(ctx, &Request{Method: http.MethodDelete, Path: path, Query: query}, result)
}
