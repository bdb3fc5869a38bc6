package wirestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass/internal/codec"
	"github.com/anyclass/anyclass/internal/rand"
	"github.com/anyclass/anyclass/pkg/filter"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

const (
	// requestIDLength is the length of generated request ids.
	requestIDLength = 16
	// DefaultTimeout bounds each call once the request is written. A
	// negative Config.Timeout disables the bound.
	DefaultTimeout = 30 * time.Second
	// closeGrace is how long Close waits for the close handshake write.
	closeGrace = 5 * time.Second
	// closeMessageCode is the code sent in the close frame.
	closeMessageCode = 1000
)

var (
	// ErrIDInUse reports a generated request id colliding with a pending one.
	ErrIDInUse = errors.New("id already in use")
	// errClientClosed is returned by calls issued after Close.
	errClientClosed = errors.New("connection closed")
)

// Config configures Connect.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the remote engine.
	URL string
	// Codec names the wire encoding, "json" (default) or "cbor".
	Codec string
	// Timeout bounds each call once the request is on the wire. Zero means
	// DefaultTimeout; a negative value disables the internal bound so only
	// the caller's context applies.
	Timeout time.Duration
	// Logger receives connection-level events; nil means silent.
	Logger *zerolog.Logger
}

// Client is a store engine backed by a remote datastore over one WebSocket
// connection. Calls multiplex over the connection and are matched to
// responses by request id; the client is safe for concurrent use.
type Client struct {
	conn     *gorilla.Conn
	connLock sync.Mutex
	codec    codec.Codec
	msgType  int
	timeout  time.Duration
	log      zerolog.Logger

	pendingMu sync.RWMutex
	pending   map[string]chan Response

	closeOnce sync.Once
	closeCh   chan struct{}
	closeErr  error

	connCloseOnce sync.Once
	connCloseErr  error
}

var _ store.Store = (*Client)(nil)

// Connect dials the remote engine and starts the response reader.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	wire, err := codec.ByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	msgType := gorilla.TextMessage
	if wire.Name() == codec.NameCBOR {
		msgType = gorilla.BinaryMessage
	}

	dialer := &gorilla.Dialer{
		Proxy:             gorilla.DefaultDialer.Proxy,
		HandshakeTimeout:  gorilla.DefaultDialer.HandshakeTimeout,
		EnableCompression: true,
		Subprotocols:      []string{wire.Name()},
	}
	conn, res, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URL, err)
	}
	defer res.Body.Close()

	timeout := cfg.Timeout
	switch {
	case timeout == 0:
		timeout = DefaultTimeout
	case timeout < 0:
		timeout = 0
	}
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	c := &Client{
		conn:    conn,
		codec:   wire,
		msgType: msgType,
		timeout: timeout,
		log:     log,
		pending: make(map[string]chan Response),
		closeCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// shutdown marks the client closed. The first cause wins; later calls are
// no-ops.
func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.closeErr = cause
		close(c.closeCh)
	})
}

func (c *Client) closedErr() error {
	select {
	case <-c.closeCh:
		return c.closeErr
	default:
		return nil
	}
}

// Close performs the close handshake and tears the connection down. Calls
// in flight fail with errClientClosed. Close is idempotent; repeat calls
// return the first result.
func (c *Client) Close() error {
	c.shutdown(errClientClosed)

	c.connCloseOnce.Do(func() {
		writeErr := make(chan error, 1)
		go func() {
			c.connLock.Lock()
			defer c.connLock.Unlock()
			writeErr <- c.conn.WriteMessage(
				gorilla.CloseMessage,
				gorilla.FormatCloseMessage(closeMessageCode, ""),
			)
		}()
		select {
		case err := <-writeErr:
			if err != nil {
				c.log.Debug().Err(err).Msg("close handshake write failed")
			}
		case <-time.After(closeGrace):
			c.log.Debug().Msg("close handshake timed out")
		}
		c.connCloseErr = c.conn.Close()
	})
	return c.connCloseErr
}

func (c *Client) readLoop() {
	for {
		select {
		case <-c.closeCh:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", errClientClosed, err))
			return
		}
		c.route(data)
	}
}

func (c *Client) route(data []byte) {
	var res Response
	if err := c.codec.Unmarshal(data, &res); err != nil {
		c.log.Error().Err(err).Msg("dropping undecodable frame")
		return
	}
	id := fmt.Sprintf("%v", res.ID)
	c.pendingMu.RLock()
	ch, ok := c.pending[id]
	c.pendingMu.RUnlock()
	if !ok {
		c.log.Warn().Str("id", id).Msg("response for unknown request id")
		return
	}
	select {
	case ch <- res:
	default:
		// The call already gave up; drop rather than block the reader.
	}
}

func (c *Client) addPending(id string) (chan Response, error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, taken := c.pending[id]; taken {
		return nil, fmt.Errorf("%w: %s", ErrIDInUse, id)
	}
	ch := make(chan Response, 1)
	c.pending[id] = ch
	return ch, nil
}

func (c *Client) removePending(id string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	delete(c.pending, id)
}

func (c *Client) write(req *Request) error {
	data, err := c.codec.Marshal(req)
	if err != nil {
		return err
	}
	c.connLock.Lock()
	defer c.connLock.Unlock()
	return c.conn.WriteMessage(c.msgType, data)
}

// call performs one request/response exchange.
func (c *Client) call(ctx context.Context, method string, params ...any) (any, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if err := c.closedErr(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := rand.String(requestIDLength)
	ch, err := c.addPending(id)
	if err != nil {
		return nil, err
	}
	defer c.removePending(id)

	if err := c.write(&Request{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closeCh:
		return nil, c.closeErr
	case res := <-ch:
		if res.Error != nil {
			return nil, res.Error.storeError()
		}
		return res.Result, nil
	}
}

func (c *Client) Insert(ctx context.Context, className string, fields map[string]models.Value) (*models.Record, error) {
	result, err := c.call(ctx, MethodInsert, className, models.AnyMap(fields))
	if err != nil {
		return nil, err
	}
	return models.RecordFromAny(result)
}

func (c *Client) GetByID(ctx context.Context, className, objectID string) (*models.Record, error) {
	result, err := c.call(ctx, MethodGetByID, className, objectID)
	if err != nil {
		return nil, err
	}
	return models.RecordFromAny(result)
}

func (c *Client) Query(ctx context.Context, className string, preds []filter.Predicate, limit, skip int) ([]*models.Record, error) {
	result, err := c.call(ctx, MethodQuery, className, PredicatesToWire(preds), limit, skip)
	if err != nil {
		return nil, err
	}
	return recordsFromResult(result)
}

func (c *Client) Update(ctx context.Context, className, objectID string, fields map[string]models.Value) (*models.Record, error) {
	result, err := c.call(ctx, MethodUpdate, className, objectID, models.AnyMap(fields))
	if err != nil {
		return nil, err
	}
	return models.RecordFromAny(result)
}

func (c *Client) Delete(ctx context.Context, className, objectID string) error {
	_, err := c.call(ctx, MethodDelete, className, objectID)
	return err
}

func (c *Client) BulkInsert(ctx context.Context, className string, fields []map[string]models.Value) ([]string, error) {
	batch := make([]any, len(fields))
	for i, f := range fields {
		batch[i] = models.AnyMap(f)
	}
	result, err := c.call(ctx, MethodBulkInsert, className, batch)
	if err != nil {
		return nil, err
	}
	return stringsFromResult(result)
}

func (c *Client) Count(ctx context.Context, className string, preds []filter.Predicate) (int64, error) {
	result, err := c.call(ctx, MethodCount, className, PredicatesToWire(preds))
	if err != nil {
		return 0, err
	}
	return intFromResult(result)
}

func (c *Client) DefineClass(ctx context.Context, className string, fields map[string]models.FieldType) error {
	wire := make(map[string]any, len(fields))
	for name, t := range fields {
		wire[name] = string(t)
	}
	_, err := c.call(ctx, MethodDefineClass, className, wire)
	return err
}

func (c *Client) ListClasses(ctx context.Context) ([]models.ClassSchema, error) {
	result, err := c.call(ctx, MethodListClasses)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []models.ClassSchema{}, nil
	}
	items, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("listClasses: expected array, got %T", result)
	}
	out := make([]models.ClassSchema, len(items))
	for i, item := range items {
		schema, err := SchemaFromWire(item)
		if err != nil {
			return nil, fmt.Errorf("listClasses[%d]: %w", i, err)
		}
		out[i] = *schema
	}
	return out, nil
}

func (c *Client) GetClassFields(ctx context.Context, className string) (*models.ClassSchema, error) {
	result, err := c.call(ctx, MethodGetClassFields, className)
	if err != nil {
		return nil, err
	}
	return SchemaFromWire(result)
}

func (c *Client) PurgeClass(ctx context.Context, className string) error {
	_, err := c.call(ctx, MethodPurgeClass, className)
	return err
}

func recordsFromResult(raw any) ([]*models.Record, error) {
	if raw == nil {
		return []*models.Record{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("query: expected array, got %T", raw)
	}
	out := make([]*models.Record, len(items))
	for i, item := range items {
		rec, err := models.RecordFromAny(item)
		if err != nil {
			return nil, fmt.Errorf("query[%d]: %w", i, err)
		}
		out[i] = rec
	}
	return out, nil
}

func stringsFromResult(raw any) ([]string, error) {
	if raw == nil {
		return []string{}, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("bulkInsert: expected array, got %T", raw)
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("bulkInsert[%d]: expected string id, got %T", i, item)
		}
		out[i] = s
	}
	return out, nil
}

func intFromResult(raw any) (int64, error) {
	switch n := raw.(type) {
	case int64:
		return n, nil
	case uint64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	}
	return 0, fmt.Errorf("count: expected number, got %T", raw)
}
