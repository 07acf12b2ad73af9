package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"github.com/btcturk-go/btcturk-go/common"
	"github.com/btcturk-go/btcturk-go/version"
)

// Request describes a single API call. A rate-limited request is re-issued
// with exactly the same method, path, query and body.
type Request struct {
	Method string
	// Path is relative to the API URL, e.g. "/v1/users/balances".
	Path  string
	Query map[string]string
	// Body, if not nil, is marshalled to JSON once, before the first attempt.
	Body interface{}
}

// envelope is the common shape of all API responses.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    flexCode        `json:"code"`
	Period  string          `json:"period"`
	Data    json.RawMessage `json:"data"`
}

type response struct {
	statusCode int
	header     http.Header
	env        envelope
	// decodeErr is set if the body isn't a valid envelope.
	decodeErr error
	body      []byte
}

// Execute performs the request and decodes the "data" field of a successful
// response into result (which may be nil).
//
// Before each attempt it waits for the client's RetryGate. If the response
// says the request was rate limited, a gate is installed (unless one is
// installed already) and the request is re-issued once the gate clears, up to
// MaxRetries times; after that *RateLimitExceeded is returned, with the gate
// left installed for other requests. Any other
// error response results in *RequestError and is not retried.
func (c *RESTClient) Execute(ctx context.Context, req *Request, result interface{}) error {
	var body []byte
	if req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			return errors.Annotatef(err, "marshalling body of %s %s", req.Method, req.Path)
		}
	}

	log := c.log.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.Path,
	})

	var lastPeriod string
	var lastDelay time.Duration

	for attempt := 0; attempt <= c.params.MaxRetries; attempt++ {
		if err := c.gate.Wait(ctx); err != nil {
			return errors.Trace(err)
		}

		if c.params.RateLimiter != nil {
			if err := c.params.RateLimiter.Wait(ctx); err != nil {
				return errors.Trace(err)
			}
		}

		resp, err := c.do(ctx, req, body)
		if err != nil {
			return errors.Trace(err)
		}

		if !isRateLimited(resp) {
			return errors.Trace(c.handleResponse(resp, result))
		}

		lastPeriod = resp.env.Period
		lastDelay = c.retryDelay(resp)

		// Other requests of the client must wait too, even if this one
		// isn't retried.
		installed := c.gate.Install(lastDelay)

		log := log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"period":  lastPeriod,
			"delay":   lastDelay,
			"gate":    installed,
		})

		if attempt == c.params.MaxRetries {
			log.Warn("Rate limited, giving up")
			break
		}

		log.Warn("Rate limited, will retry")
	}

	return errors.Trace(&RateLimitExceeded{
		Attempts:   c.params.MaxRetries + 1,
		Period:     lastPeriod,
		RetryAfter: lastDelay,
	})
}

// do performs a single HTTP call.
func (c *RESTClient) do(ctx context.Context, req *Request, body []byte) (*response, error) {
	u, err := url.Parse(c.params.URL + "/" + strings.TrimLeft(req.Path, "/"))
	if err != nil {
		return nil, errors.Annotatef(err, "parsing URL for %s", req.Path)
	}

	if len(req.Query) > 0 {
		q := u.Query()
		for k, v := range req.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	httpReq, err := http.NewRequest(req.Method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	httpReq = httpReq.WithContext(ctx)

	httpReq.Header.Set("User-Agent", version.UserAgent())
	httpReq.Header.Set("Content-Type", "application/json")

	if !c.params.Credentials.Empty() {
		if err := signRequest(httpReq.Header, c.params.Credentials); err != nil {
			return nil, errors.Trace(err)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Annotatef(err, "%s %s", req.Method, req.Path)
	}
	defer httpResp.Body.Close()

	data, err := ioutil.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.Annotatef(err, "reading response of %s %s", req.Method, req.Path)
	}

	resp := &response{
		statusCode: httpResp.StatusCode,
		header:     httpResp.Header,
		body:       data,
	}

	if len(bytes.TrimSpace(data)) > 0 {
		resp.decodeErr = json.Unmarshal(data, &resp.env)
	} else {
		resp.decodeErr = errors.New("empty response body")
	}

	return resp, nil
}

// signRequest adds the authentication headers: public key, millisecond
// timestamp and the signature over the two.
func signRequest(h http.Header, creds *common.Credentials) error {
	stamp := strconv.FormatInt(int64(common.NowMillis()), 10)

	signature, err := creds.Sign(stamp)
	if err != nil {
		return errors.Annotatef(err, "signing request")
	}

	h.Set("X-PCK", creds.PublicKey)
	h.Set("X-Stamp", stamp)
	h.Set("X-Signature", signature)

	return nil
}

func (c *RESTClient) handleResponse(resp *response, result interface{}) error {
	if resp.statusCode < 200 || resp.statusCode > 299 {
		reqErr := &RequestError{
			StatusCode: resp.statusCode,
			Code:       string(resp.env.Code),
			Message:    resp.env.Message,
		}
		if resp.decodeErr != nil {
			reqErr.Message = strings.TrimSpace(string(resp.body))
		}
		return reqErr
	}

	if resp.decodeErr != nil {
		return errors.Annotatef(resp.decodeErr, "decoding response")
	}

	if !resp.env.Success {
		return &RequestError{
			StatusCode: resp.statusCode,
			Code:       string(resp.env.Code),
			Message:    resp.env.Message,
		}
	}

	if result == nil || len(resp.env.Data) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.env.Data, result); err != nil {
		return errors.Annotatef(err, "decoding response data")
	}

	return nil
}

func isRateLimited(resp *response) bool {
	if resp.statusCode == http.StatusTooManyRequests {
		return true
	}

	if resp.decodeErr != nil {
		return false
	}

	return strings.EqualFold(string(resp.env.Code), rateLimitCode) ||
		strings.EqualFold(resp.env.Message, rateLimitCode)
}

// retryDelay returns how long to wait before re-issuing a rate-limited
// request: the response's period if it parses, then the Retry-After header,
// then the configured default.
func (c *RESTClient) retryDelay(resp *response) time.Duration {
	if resp.env.Period != "" {
		d, err := ParsePeriod(resp.env.Period)
		if err == nil {
			return d
		}

		c.log.WithError(err).WithField("period", resp.env.Period).Warn("Bad rate limit period")
	}

	if d, ok := retryAfter(resp.header, time.Now()); ok {
		return d
	}

	return c.params.RetryDelay
}

// retryAfter parses the Retry-After header, which is either a number of
// seconds or an HTTP date.
func retryAfter(h http.Header, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0, false
	}

	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		if secs < 0 || secs > int64(math.MaxInt64/time.Second) {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}

	return 0, false
}
