package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

const (
	defaultTimeout = 15 * time.Second

	// maxErrorBody bounds how much of an unstructured error body ends up in
	// a RemoteRejectedError message.
	maxErrorBody = 200
)

// Option configures a [Client].
type Option func(*clientOptions)

type clientOptions struct {
	hc          *http.Client
	maxAttempts int
	userAgent   string
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.hc = hc }
}

// WithMaxAttempts sets how often a transient failure is tried before the
// call gives up. Values below 1 mean a single attempt.
func WithMaxAttempts(n int) Option {
	return func(o *clientOptions) { o.maxAttempts = n }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *clientOptions) { o.userAgent = ua }
}

// Client is the remote store client for one collection.
type Client[T syncp.Payload[T]] struct {
	baseURL     string
	token       string
	collection  string
	hc          *http.Client
	maxAttempts int
	userAgent   string
	logger      *slog.Logger
}

// NewClient returns a client for collection on the server at baseURL. token
// is sent as a bearer credential when non-empty.
func NewClient[T syncp.Payload[T]](baseURL, token, collection string, logger *slog.Logger, opts ...Option) *Client[T] {
	o := clientOptions{
		hc:          &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		userAgent:   "offsync",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxAttempts < 1 {
		o.maxAttempts = 1
	}
	return &Client[T]{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		collection:  collection,
		hc:          o.hc,
		maxAttempts: o.maxAttempts,
		userAgent:   o.userAgent,
		logger:      logger,
	}
}

// Create implements syncp.RemoteClient. The client token travels in the
// body and as the Idempotency-Key header.
func (c *Client[T]) Create(ctx context.Context, payload T, clientToken string) (syncp.RemoteRecord[T], error) {
	body := WriteRequest{ClientToken: clientToken, Data: payload.RemoteShape()}
	raw, err := c.do(ctx, "create", http.MethodPost, c.collectionURL(), body, clientToken)
	if err != nil {
		if dup, ok := asDuplicate(err); ok {
			dup.ClientToken = clientToken
		}
		return syncp.RemoteRecord[T]{}, err
	}
	return c.decodeItem("create", raw)
}

// Update implements syncp.RemoteClient.
func (c *Client[T]) Update(ctx context.Context, remoteID string, payload T) (syncp.RemoteRecord[T], error) {
	body := WriteRequest{Data: payload.RemoteShape()}
	raw, err := c.do(ctx, "update", http.MethodPut, c.itemURL(remoteID), body, "")
	if err != nil {
		return syncp.RemoteRecord[T]{}, err
	}
	return c.decodeItem("update", raw)
}

// Delete implements syncp.RemoteClient.
func (c *Client[T]) Delete(ctx context.Context, remoteID string) error {
	_, err := c.do(ctx, "delete", http.MethodDelete, c.itemURL(remoteID), nil, "")
	return err
}

// List implements syncp.RemoteClient.
func (c *Client[T]) List(ctx context.Context, page, pageSize int) (syncp.Page[T], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(pageSize))
	raw, err := c.do(ctx, "list", http.MethodGet, c.collectionURL()+"?"+q.Encode(), nil, "")
	if err != nil {
		return syncp.Page[T]{}, err
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return syncp.Page[T]{}, malformed("list", "decoding envelope: %v", err)
	}
	if env.Meta == nil {
		return syncp.Page[T]{}, malformed("list", "missing meta")
	}
	if isNull(env.Data) {
		return syncp.Page[T]{}, malformed("list", "missing data")
	}
	var items []Item
	if err := json.Unmarshal(env.Data, &items); err != nil {
		return syncp.Page[T]{}, malformed("list", "decoding items: %v", err)
	}

	pg := syncp.Page[T]{
		Items:       make([]syncp.RemoteRecord[T], 0, len(items)),
		CurrentPage: env.Meta.CurrentPage,
		LastPage:    env.Meta.LastPage,
	}
	for _, it := range items {
		rec, err := toRecord[T](it)
		if err != nil {
			return syncp.Page[T]{}, malformed("list", "item %q: %v", it.ID, err)
		}
		pg.Items = append(pg.Items, rec)
	}
	return pg, nil
}

// do runs one request with retries and returns the body of a successful
// response. Errors are already mapped onto the sync error kinds.
func (c *Client[T]) do(ctx context.Context, op, method, endpoint string, body any, idempotencyKey string) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding %s %s request: %w", c.collection, op, err)
		}
	}

	var out []byte
	err := Retry(ctx, c.maxAttempts, func() error {
		var reqBody io.Reader
		if payload != nil {
			reqBody = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
		if err != nil {
			return Permanent(fmt.Errorf("building %s %s request: %w", c.collection, op, err))
		}
		c.setHeaders(req, payload != nil, idempotencyKey)

		resp, err := c.hc.Do(req)
		if err != nil {
			c.logger.Debug("remote request failed",
				"collection", c.collection,
				"op", op,
				"error", err,
			)
			return fmt.Errorf("%s %s: %w: %v", op, c.collection, syncp.ErrNetworkUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s %s: reading response: %w: %v", op, c.collection, syncp.ErrNetworkUnavailable, err)
		}
		c.logger.Debug("remote request",
			"collection", c.collection,
			"op", op,
			"status", resp.StatusCode,
		)

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out = raw
			return nil
		}
		return classify(op, resp.StatusCode, raw)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client[T]) setHeaders(req *http.Request, hasBody bool, idempotencyKey string) {
	if c.token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set(HeaderIdempotencyKey, idempotencyKey)
	}
}

func (c *Client[T]) collectionURL() string {
	return c.baseURL + "/v1/" + url.PathEscape(c.collection)
}

func (c *Client[T]) itemURL(remoteID string) string {
	return c.collectionURL() + "/" + url.PathEscape(remoteID)
}

func (c *Client[T]) decodeItem(op string, raw []byte) (syncp.RemoteRecord[T], error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return syncp.RemoteRecord[T]{}, malformed(op, "decoding envelope: %v", err)
	}
	if isNull(env.Data) {
		return syncp.RemoteRecord[T]{}, malformed(op, "missing data")
	}
	var it Item
	if err := json.Unmarshal(env.Data, &it); err != nil {
		return syncp.RemoteRecord[T]{}, malformed(op, "decoding item: %v", err)
	}
	if it.ID == "" {
		return syncp.RemoteRecord[T]{}, malformed(op, "item without id")
	}
	rec, err := toRecord[T](it)
	if err != nil {
		return syncp.RemoteRecord[T]{}, malformed(op, "item %q: %v", it.ID, err)
	}
	return rec, nil
}

// classify maps a non-2xx response onto the sync error kinds. Server errors
// and throttling are retried; everything else is permanent.
func classify(op string, status int, body []byte) error {
	var eb ErrorBody
	structured := json.Unmarshal(body, &eb) == nil && eb.Error.Code != ""

	switch {
	case status == http.StatusNotFound:
		return Permanent(fmt.Errorf("%s: %w", op, syncp.ErrNotFound))
	case status == http.StatusConflict && structured && eb.Error.Code == CodeDuplicateToken:
		if eb.Error.ID == "" {
			return Permanent(malformed(op, "duplicate token response without id"))
		}
		return Permanent(&syncp.DuplicateTokenError{RemoteID: eb.Error.ID})
	}

	msg := eb.Error.Message
	if !structured {
		msg = truncate(body)
	}
	rejected := &syncp.RemoteRejectedError{Operation: op, Code: status, Message: msg}
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return rejected
	}
	return Permanent(rejected)
}

func toRecord[T any](it Item) (syncp.RemoteRecord[T], error) {
	rec := syncp.RemoteRecord[T]{
		RemoteID:     it.ID,
		ClientToken:  it.ClientToken,
		LastModified: it.LastModified.UTC(),
		Deleted:      it.Deleted,
	}
	if isNull(it.Attributes) {
		if it.Deleted {
			// A tombstone may omit its attributes.
			return rec, nil
		}
		return rec, errors.New("missing attributes")
	}
	if err := json.Unmarshal(it.Attributes, &rec.Payload); err != nil {
		return rec, fmt.Errorf("decoding attributes: %w", err)
	}
	return rec, nil
}

func asDuplicate(err error) (*syncp.DuplicateTokenError, bool) {
	var dup *syncp.DuplicateTokenError
	ok := errors.As(err, &dup)
	return dup, ok
}

func malformed(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, syncp.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
