package bili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// maxBodyBytes caps how much of an upstream body is read.
const maxBodyBytes = 4 << 20

// envelope is the fixed upstream response shape. Business success is
// code == 0; everything else rides inside an HTTP 200.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type reqOpts struct {
	signed bool
	// tolerateAuth lets the session-info call through even when the
	// upstream answers "not logged in" — the key URLs are present anyway.
	tolerateAuth bool
}

// dispatch routes a GET through the gate and returns the envelope payload.
// Every domain operation goes through here, including endpoints that do
// not require signing.
func (c *Client) dispatch(ctx context.Context, path string, params map[string]string, signed bool) (json.RawMessage, error) {
	env, err := c.request(ctx, path, params, reqOpts{signed: signed})
	if err != nil {
		return nil, err
	}
	return env.Data, nil
}

// request performs the gated, retried call and classifies the envelope.
func (c *Client) request(ctx context.Context, path string, params map[string]string, o reqOpts) (*envelope, error) {
	var query string
	if o.signed {
		signedQuery, err := c.sign(ctx, params)
		if err != nil {
			return nil, err
		}
		query = signedQuery
	} else {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		query = values.Encode()
	}
	reqURL := c.cfg.APIBase + path
	if query != "" {
		reqURL += "?" + query
	}

	started := time.Now()
	defer func() {
		dispatchLatency.WithLabelValues(path).Observe(time.Since(started).Seconds())
	}()

	op := func() (*envelope, error) {
		// One outbound request in flight, spaced by MinInterval. Waiting
		// before every attempt keeps retries spaced too.
		if err := c.gate.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}

		body, err := c.doGET(ctx, reqURL)
		if err != nil {
			return nil, err // *TransportError, retryable
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, backoff.Permanent(&MalformedResponseError{Endpoint: path, Err: err})
		}

		switch {
		case env.Code == 0:
			c.lastSuccess.Store(time.Now().Unix())
			return &env, nil
		case c.auth[env.Code]:
			if o.tolerateAuth {
				c.lastSuccess.Store(time.Now().Unix())
				return &env, nil
			}
			return nil, backoff.Permanent(&AuthError{Code: env.Code, Message: env.Message})
		case c.retryable[env.Code]:
			// Transient: overloaded / rate-limited / risk-gated. Worth
			// re-sending the identical request after backing off.
			return nil, &BusinessError{Code: env.Code, Message: env.Message}
		default:
			return nil, backoff.Permanent(&BusinessError{Code: env.Code, Message: env.Message})
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	env, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			dispatchRetries.Inc()
			slog.Debug("dispatch retrying",
				slog.String("endpoint", path),
				slog.Duration("wait", wait),
				slog.Any("error", err))
		}),
	)
	dispatchTotal.WithLabelValues(path, outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return env, nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isErrOfType[*AuthError](err):
		return "auth"
	case isErrOfType[*BusinessError](err):
		return "business"
	case isErrOfType[*MalformedResponseError](err):
		return "malformed"
	default:
		return "transport"
	}
}

func isErrOfType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// doGET issues one HTTP GET with the fixed headers and the credential
// cookie when present. Transport failures and non-2xx statuses come back
// as *TransportError.
func (c *Client) doGET(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Referer", c.cfg.Referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	if c.cfg.Credential != "" {
		req.AddCookie(&http.Cookie{Name: "SESSDATA", Value: c.cfg.Credential})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &TransportError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// fetchJSON GETs an absolute URL (subtitle track bodies live on a separate
// CDN host) through the same gate, decoding into v. No envelope, no
// business-code classification — plain transport with retry.
func (c *Client) fetchJSON(ctx context.Context, rawURL string, v any) error {
	op := func() ([]byte, error) {
		if err := c.gate.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		return c.doGET(ctx, rawURL)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.BaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0

	body, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.cfg.MaxRetries)+1),
	)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &MalformedResponseError{Endpoint: rawURL, Err: err}
	}
	return nil
}
