package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tildaslashalef/notesync/internal/config"
	"github.com/tildaslashalef/notesync/internal/loggy"
	"github.com/tildaslashalef/notesync/internal/note"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	notesPath  = "/api/notes"
	healthPath = "/api/health"

	// DeviceHeader carries the configured device name on every request
	DeviceHeader = "X-Device-Name"
	// RequestIDHeader carries the request id on every request. Requests
	// made during a sync pass share the pass id.
	RequestIDHeader = "X-Request-ID"
)

// wireNote is the JSON shape exchanged with the server. The local-only
// synced flag is never sent.
type wireNote struct {
	ID         string    `json:"id"`
	OwnerID    string    `json:"owner_id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// patchNote carries the mutable fields of an update
type patchNote struct {
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	ModifiedAt time.Time `json:"modified_at"`
}

func toWire(rec *note.Record) wireNote {
	return wireNote{
		ID:         rec.ID,
		OwnerID:    rec.OwnerID,
		Title:      rec.Title,
		Body:       rec.Body,
		CreatedAt:  rec.CreatedAt.UTC(),
		ModifiedAt: rec.ModifiedAt.UTC(),
	}
}

// record converts the wire form into a synced record
func (w wireNote) record() *note.Record {
	return &note.Record{
		ID:         w.ID,
		OwnerID:    w.OwnerID,
		Title:      w.Title,
		Body:       w.Body,
		CreatedAt:  w.CreatedAt.UTC(),
		ModifiedAt: w.ModifiedAt.UTC(),
		Synced:     true,
	}
}

// HTTPGateway implements Gateway against the notes REST API
type HTTPGateway struct {
	baseURL    string
	deviceName string
	timeout    time.Duration
	maxRetries int
	limiter    *rate.Limiter
	logger     *loggy.Logger
	newBackOff func() backoff.BackOff

	mu         sync.RWMutex
	token      string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway from the server configuration
func NewHTTPGateway(cfg config.ServerConfig, logger *loggy.Logger) *HTTPGateway {
	g := &HTTPGateway{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		deviceName: cfg.DeviceName,
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		limiter:    newLimiter(cfg.RequestsPerMinute, cfg.BurstLimit),
		logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
	g.SetToken(cfg.Token)
	return g
}

// newLimiter creates a rate limiter from requests per minute and burst.
// A non-positive rpm disables limiting.
func newLimiter(rpm, burst int) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if rpm <= 0 {
		return rate.NewLimiter(rate.Inf, burst)
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// SetToken replaces the bearer token used for every request
func (g *HTTPGateway) SetToken(token string) {
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	client := &http.Client{
		Timeout: g.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   transport,
		},
	}

	g.mu.Lock()
	g.token = token
	g.httpClient = client
	g.mu.Unlock()
}

// Configured reports whether the gateway has a target and credentials
func (g *HTTPGateway) Configured() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.baseURL != "" && g.token != ""
}

// FetchAll returns every remote record of the owner
func (g *HTTPGateway) FetchAll(ctx context.Context, ownerID string) ([]*note.Record, error) {
	var wire []wireNote
	err := g.do(ctx, call{
		op:     "fetch all",
		method: http.MethodGet,
		path:   notesPath,
		query:  ownerQuery(ownerID),
		out:    &wire,
	})
	if err != nil {
		return nil, err
	}

	records := make([]*note.Record, 0, len(wire))
	for _, w := range wire {
		records = append(records, w.record())
	}
	return records, nil
}

// FetchOne returns the remote record or nil when the server has none
func (g *HTTPGateway) FetchOne(ctx context.Context, id, ownerID string) (*note.Record, error) {
	var wire wireNote
	err := g.do(ctx, call{
		op:     "fetch one",
		method: http.MethodGet,
		path:   notePath(id),
		query:  ownerQuery(ownerID),
		out:    &wire,
	})
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return wire.record(), nil
}

// Create posts a new record. An empty response body means the server stored
// the record as sent.
func (g *HTTPGateway) Create(ctx context.Context, rec *note.Record) (*note.Record, error) {
	wire := toWire(rec)
	err := g.do(ctx, call{
		op:     "create",
		method: http.MethodPost,
		path:   notesPath,
		body:   wire,
		out:    &wire,
	})
	if err != nil {
		return nil, err
	}
	return wire.record(), nil
}

// Update patches title, body and modification time of an existing record
func (g *HTTPGateway) Update(ctx context.Context, rec *note.Record) (*note.Record, error) {
	wire := toWire(rec)
	err := g.do(ctx, call{
		op:     "update",
		method: http.MethodPatch,
		path:   notePath(rec.ID),
		query:  ownerQuery(rec.OwnerID),
		body:   patchNote{Title: rec.Title, Body: rec.Body, ModifiedAt: rec.ModifiedAt.UTC()},
		out:    &wire,
	})
	if err != nil {
		return nil, err
	}
	return wire.record(), nil
}

// Delete removes a record. A 404 counts as success.
func (g *HTTPGateway) Delete(ctx context.Context, id, ownerID string) error {
	err := g.do(ctx, call{
		op:     "delete",
		method: http.MethodDelete,
		path:   notePath(id),
		query:  ownerQuery(ownerID),
	})
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Ping calls the health endpoint once, without retries
func (g *HTTPGateway) Ping(ctx context.Context) error {
	return g.do(ctx, call{
		op:      "ping",
		method:  http.MethodGet,
		path:    healthPath,
		noRetry: true,
	})
}

func ownerQuery(ownerID string) url.Values {
	return url.Values{"owner_id": []string{ownerID}}
}

func notePath(id string) string {
	return notesPath + "/" + url.PathEscape(id)
}

type call struct {
	op      string
	method  string
	path    string
	query   url.Values
	body    any
	out     any
	noRetry bool
}

// do executes a call, retrying transient failures with exponential backoff
func (g *HTTPGateway) do(ctx context.Context, c call) error {
	g.mu.RLock()
	client, token := g.httpClient, g.token
	g.mu.RUnlock()

	if g.baseURL == "" || token == "" {
		return fmt.Errorf("%s: %w", c.op, ErrUnconfigured)
	}

	var payload []byte
	if c.body != nil {
		var err error
		payload, err = json.Marshal(c.body)
		if err != nil {
			return fmt.Errorf("%s: marshaling request body: %w", c.op, err)
		}
	}

	endpoint := g.baseURL + c.path
	if len(c.query) > 0 {
		endpoint += "?" + c.query.Encode()
	}

	requestID := loggy.GetRequestID(ctx)
	if requestID == "" {
		requestID = loggy.NewRequestID()
	}
	logger := g.logger.With("op", c.op, "request_id", requestID)

	attempt := 0
	var lastErr error
	operation := func() error {
		attempt++

		if err := g.limiter.Wait(ctx); err != nil {
			lastErr = fmt.Errorf("%s: waiting for rate limiter: %w", c.op, err)
			return backoff.Permanent(lastErr)
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, c.method, endpoint, bodyReader)
		if err != nil {
			lastErr = fmt.Errorf("%s: creating request: %w", c.op, err)
			return backoff.Permanent(lastErr)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(RequestIDHeader, requestID)
		if g.deviceName != "" {
			req.Header.Set(DeviceHeader, g.deviceName)
		}

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				lastErr = fmt.Errorf("%s: %w", c.op, ctx.Err())
				return backoff.Permanent(lastErr)
			}
			lastErr = &TransientError{Op: c.op, Err: err}
			logger.Debug("Remote request failed", "attempt", attempt, "error", err)
			return lastErr
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = &TransientError{Op: c.op, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response body: %w", err)}
			return lastErr
		}

		logger.Debug("Remote response",
			"method", c.method,
			"path", c.path,
			"status_code", resp.StatusCode,
			"attempt", attempt,
			"content_length", len(respBody))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = classifyStatus(c.op, resp.StatusCode, parseAPIError(resp, respBody))
			if IsTransient(lastErr) {
				return lastErr
			}
			return backoff.Permanent(lastErr)
		}

		if c.out != nil && len(bytes.TrimSpace(respBody)) > 0 {
			if err := json.Unmarshal(respBody, c.out); err != nil {
				lastErr = fmt.Errorf("%s: decoding response: %w", c.op, err)
				return backoff.Permanent(lastErr)
			}
		}

		lastErr = nil
		return nil
	}

	retries := g.maxRetries
	if c.noRetry || retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), uint64(retries)), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		if errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			logger.Debug("Remote request cancelled", "attempts", attempt)
		} else {
			logger.Warn("Remote request failed", "attempts", attempt, "error", lastErr)
		}
		return lastErr
	}

	return nil
}

// parseAPIError decodes an error body, falling back to the raw status text
func parseAPIError(resp *http.Response, body []byte) APIError {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || (apiErr.Message == "" && apiErr.ErrorCode == "") {
		apiErr.Message = strings.TrimSpace(string(body))
		if apiErr.Message == "" {
			apiErr.Message = resp.Status
		}
	}
	apiErr.StatusCode = resp.StatusCode
	return apiErr
}
