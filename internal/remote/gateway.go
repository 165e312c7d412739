// Package remote is a thin client for the external memory service.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	// ErrUnavailable covers network errors, unexpected statuses, malformed
	// payloads and a missing configuration. Callers treat it as a fallback
	// trigger.
	ErrUnavailable = errors.New("remote memory service unavailable")
	// ErrNotFound is returned when the service reports 404 for an id.
	ErrNotFound = errors.New("remote memory not found")
	// ErrNotSupported is returned for operations the service does not
	// implement (405/501) or that are disabled in configuration.
	ErrNotSupported = errors.New("remote operation not supported")
)

// Op names a remote operation.
type Op string

const (
	OpCreate Op = "create"
	OpSearch Op = "search"
	OpGet    Op = "get"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// Options configures a Gateway.
type Options struct {
	BaseURL string
	APIKey  string
	// Timeout bounds each HTTP attempt. Zero means 5s.
	Timeout time.Duration
	// Retries is the number of extra attempts after a retryable failure.
	Retries     int
	DisabledOps []string
	Logger      zerolog.Logger
}

// Gateway talks to the remote memory service over HTTP.
type Gateway struct {
	client   *resty.Client
	retries  int
	disabled map[Op]bool
	ready    bool
	log      zerolog.Logger
}

// New constructs a Gateway. A gateway without a base URL or API key is
// valid but reports Configured() == false and fails every call with
// ErrUnavailable.
func New(opts Options) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	c := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	disabled := make(map[Op]bool, len(opts.DisabledOps))
	for _, op := range opts.DisabledOps {
		disabled[Op(strings.ToLower(strings.TrimSpace(op)))] = true
	}

	return &Gateway{
		client:   c,
		retries:  opts.Retries,
		disabled: disabled,
		ready:    opts.BaseURL != "" && opts.APIKey != "",
		log:      opts.Logger.With().Str("component", "remote").Logger(),
	}
}

// Configured reports whether a base URL and credential are present.
func (g *Gateway) Configured() bool {
	return g != nil && g.ready
}

// AllOps lists every remote operation.
func AllOps() []Op {
	return []Op{OpCreate, OpSearch, OpGet, OpUpdate, OpDelete, OpList}
}

// Supports reports whether op is enabled in configuration.
func (g *Gateway) Supports(op Op) bool {
	return !g.disabled[op]
}

// Disabled returns the operations turned off in configuration.
func (g *Gateway) Disabled() []string {
	var out []string
	for _, op := range AllOps() {
		if !g.Supports(op) {
			out = append(out, string(op))
		}
	}
	return out
}

type call struct {
	op     Op
	method string
	path   string
	query  map[string]string
	body   interface{}
	result interface{}
}

func (g *Gateway) do(ctx context.Context, c call) error {
	if !g.Configured() {
		return fmt.Errorf("%w: not configured", ErrUnavailable)
	}
	if !g.Supports(c.op) {
		return fmt.Errorf("%w: %s disabled", ErrNotSupported, c.op)
	}

	// One key per logical call so the service can dedupe retried writes.
	idemKey := uuid.NewString()
	attempts := 0

	attempt := func() error {
		attempts++
		req := g.client.R().
			SetContext(ctx).
			SetHeader("Idempotency-Key", idemKey)
		if c.body != nil {
			req.SetBody(c.body)
		}
		if len(c.query) > 0 {
			req.SetQueryParams(c.query)
		}

		resp, err := req.Execute(c.method, c.path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.op, err)
		}

		code := resp.StatusCode()
		switch {
		case code == http.StatusNotFound:
			return backoff.Permanent(fmt.Errorf("%w: %s", ErrNotFound, c.path))
		case code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented:
			return backoff.Permanent(fmt.Errorf("%w: %s: HTTP %d", ErrNotSupported, c.op, code))
		case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500:
			return fmt.Errorf("%w: %s: HTTP %d", ErrUnavailable, c.op, code)
		case code < 200 || code >= 300:
			return backoff.Permanent(fmt.Errorf("%w: %s: HTTP %d: %s", ErrUnavailable, c.op, code, truncate(resp.String(), 200)))
		}

		if c.result != nil {
			if err := json.Unmarshal(resp.Body(), c.result); err != nil {
				return backoff.Permanent(fmt.Errorf("%w: %s: malformed payload: %v", ErrUnavailable, c.op, err))
			}
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 100 * time.Millisecond
	exp.MaxInterval = 2 * time.Second
	var b backoff.BackOff = backoff.WithMaxRetries(exp, uint64(max(g.retries, 0)))
	b = backoff.WithContext(b, ctx)

	start := time.Now()
	err := backoff.Retry(attempt, b)
	if err != nil && !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotSupported) {
		err = fmt.Errorf("%w: %s: %v", ErrUnavailable, c.op, err)
	}
	if err != nil {
		err = pkgerrors.WithStack(err)
	}

	ev := g.log.Debug()
	if err != nil && errors.Is(err, ErrUnavailable) {
		ev = g.log.Warn().Stack().Err(err)
	}
	ev.Str("op", string(c.op)).
		Int("attempts", attempts).
		Dur("elapsed", time.Since(start)).
		Msg("remote call")

	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
