// Package odoo relays outbox mutations to Odoo over its JSON-RPC web API.
package odoo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

const (
	authenticatePath = "/web/session/authenticate"
	callKWPath       = "/web/dataset/call_kw"
	sessionCookie    = "session_id"

	// odooIDKey holds the Odoo id of an entity that was already created downstream.
	odooIDKey = "odoo_id"
)

var _ outbox.DownstreamClient = (*Client)(nil)

var (
	ErrAuthenticationFailed = errors.New("odoo authentication failed")
	ErrNotAuthenticated     = errors.New("odoo client not authenticated")
	ErrInvalidIdentifier    = errors.New("odoo identifier is not an integer id")
)

// permanentExceptions are Odoo exceptions a retry of the same call cannot fix.
var permanentExceptions = map[string]struct{}{
	"ValidationError": {},
	"UserError":       {},
	"AccessError":     {},
	"MissingError":    {},
	"AccessDenied":    {},
}

// metaKeys never reach Odoo as field values.
var metaKeys = []string{odooIDKey, "id", outbox.SchemaVersionKey}

type Config struct {
	URL      string
	DB       string
	Login    string
	Password string

	// IdempotencyField names a char field on the target models that stores the record's
	// idempotency key. When set, an upsert without odoo_id searches by it before creating,
	// so a redelivered create does not insert a second entity.
	IdempotencyField string
}

type Option func(c *Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

type Client struct {
	conf   Config
	http   *http.Client
	logger *zap.Logger
	nextID atomic.Uint64

	mu      sync.RWMutex
	session string
	uid     int64
}

func New(conf Config, opts ...Option) *Client {
	c := &Client{
		conf:   conf,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.conf.URL = strings.TrimRight(c.conf.URL, "/")
	c.logger = c.logger.Named("odoo")

	return c
}

// UID returns the Odoo user id of the current session, zero before Authenticate.
func (c *Client) UID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uid
}

func (c *Client) Authenticate(ctx context.Context) error {
	params := map[string]any{
		"db":       c.conf.DB,
		"login":    c.conf.Login,
		"password": c.conf.Password,
	}

	var result struct {
		UID json.RawMessage `json:"uid"`
	}
	resp, err := c.post(ctx, authenticatePath, "", params, &result)
	if err != nil {
		return classify(fmt.Errorf("authenticating as %q: %w", c.conf.Login, err))
	}

	// Odoo answers uid false for bad credentials.
	uid, _ := strconv.ParseInt(string(result.UID), 10, 64)
	if uid <= 0 {
		return outbox.Permanent(fmt.Errorf("%w: login %q on db %q", ErrAuthenticationFailed, c.conf.Login, c.conf.DB))
	}

	var session string
	for _, cookie := range resp.Cookies() {
		if cookie.Name == sessionCookie {
			session = cookie.Value
		}
	}
	if session == "" {
		return outbox.Transient(fmt.Errorf("%w: no %s cookie in response", ErrAuthenticationFailed, sessionCookie))
	}

	c.mu.Lock()
	c.session = session
	c.uid = uid
	c.mu.Unlock()
	c.logger.Info("authenticated", zap.Int64("uid", uid), zap.String("db", c.conf.DB))

	return nil
}

// Upsert writes the entity when the payload carries its odoo_id, otherwise it creates it.
func (c *Client) Upsert(ctx context.Context, m outbox.Mutation) error {
	model := m.TargetEntity
	values := fieldValues(m.Payload)

	if id, ok := odooID(m.Payload); ok {
		return c.write(ctx, model, id, values)
	}

	if field := c.conf.IdempotencyField; field != "" {
		values[field] = m.IdempotencyKey
		var ids []int64
		domain := []any{[]any{field, "=", m.IdempotencyKey}}
		if err := c.callKW(ctx, model, "search", []any{domain}, map[string]any{"limit": 1}, &ids); err != nil {
			return err
		}
		if len(ids) > 0 {
			c.logger.Debug("entity already created, writing instead",
				zap.String("model", model),
				zap.Int64("odoo_id", ids[0]),
				zap.String("idempotency_key", m.IdempotencyKey))
			return c.write(ctx, model, ids[0], values)
		}
	}

	var id int64
	if err := c.callKW(ctx, model, "create", []any{values}, nil, &id); err != nil {
		return err
	}
	c.logger.Debug("entity created", zap.String("model", model), zap.Int64("odoo_id", id), zap.Int64("record_id", m.RecordID))

	return nil
}

// Delete unlinks the entity. An entity that is already gone counts as deleted.
func (c *Client) Delete(ctx context.Context, m outbox.Mutation) error {
	id, ok := toID(m.Identifier)
	if !ok {
		return outbox.Permanent(fmt.Errorf("%w: %v", ErrInvalidIdentifier, m.Identifier))
	}

	var deleted bool
	err := c.callKW(ctx, m.TargetEntity, "unlink", []any{[]int64{id}}, nil, &deleted)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.Exception() == "MissingError" {
		c.logger.Debug("entity already deleted", zap.String("model", m.TargetEntity), zap.Int64("odoo_id", id))
		return nil
	}

	return err
}

func (c *Client) write(ctx context.Context, model string, id int64, values map[string]any) error {
	var ok bool
	return c.callKW(ctx, model, "write", []any{[]int64{id}, values}, nil, &ok)
}

// callKW invokes an ORM method. An expired session is renewed once and the call repeated.
func (c *Client) callKW(ctx context.Context, model, method string, args []any, kwargs map[string]any, out any) error {
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	params := map[string]any{
		"model":  model,
		"method": method,
		"args":   args,
		"kwargs": kwargs,
	}

	err := c.callWithSession(ctx, params, out)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && rpcErr.SessionExpired() {
		c.logger.Info("odoo session expired, authenticating again")
		if authErr := c.Authenticate(ctx); authErr != nil {
			return authErr
		}
		err = c.callWithSession(ctx, params, out)
	}
	if err != nil {
		return classify(fmt.Errorf("%s.%s: %w", model, method, err))
	}

	return nil
}

func (c *Client) callWithSession(ctx context.Context, params map[string]any, out any) error {
	c.mu.RLock()
	session := c.session
	c.mu.RUnlock()
	if session == "" {
		return ErrNotAuthenticated
	}

	_, err := c.post(ctx, callKWPath, session, params, out)
	return err
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) post(ctx context.Context, path, session string, params, out any) (*http.Response, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		Method:  "call",
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return nil, outbox.Permanent(fmt.Errorf("encoding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.URL+path, bytes.NewReader(body))
	if err != nil {
		return nil, outbox.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: sessionCookie, Value: session})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 512)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
	}

	return resp, nil
}

func fieldValues(payload outbox.Payload) map[string]any {
	values := make(map[string]any, len(payload))
	for k, v := range payload {
		values[k] = v
	}
	for _, k := range metaKeys {
		delete(values, k)
	}
	return values
}

func odooID(payload outbox.Payload) (int64, bool) {
	id, ok := toID(payload[odooIDKey])
	return id, ok && id > 0
}

func toID(v any) (int64, bool) {
	switch id := v.(type) {
	case int:
		return int64(id), id > 0
	case int32:
		return int64(id), id > 0
	case int64:
		return id, id > 0
	case float64:
		if id != float64(int64(id)) {
			return 0, false
		}
		return int64(id), id > 0
	case json.Number:
		n, err := id.Int64()
		return n, err == nil && n > 0
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
