// Package fakestore runs an in-process WebSocket datastore for tests. It
// speaks the remote-engine RPC protocol over JSON or CBOR, executes requests
// against a real in-memory engine by default, and supports stub responses
// and failure injection for exercising client error paths.
//
// Stub responses are matched in the order they were added; the first match
// wins. A request no stub matches is executed against the backing engine.
package fakestore

import (
	"context"
	cryptorand "crypto/rand"
	"log"
	"math/rand"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/anyclass/anyclass/internal/codec"
	"github.com/anyclass/anyclass/pkg/store"
	"github.com/anyclass/anyclass/pkg/store/memstore"
	"github.com/anyclass/anyclass/pkg/store/wirestore"
)

// FailureType selects how a request is sabotaged.
type FailureType string

const (
	// FailureNone injects nothing.
	FailureNone FailureType = "none"
	// FailureRequestDelay sleeps before processing the request.
	FailureRequestDelay FailureType = "request_delay"
	// FailureInvalidResponse answers with random bytes instead of a
	// protocol frame.
	FailureInvalidResponse FailureType = "invalid_response"
	// FailureDropConnection closes the connection without a close frame.
	FailureDropConnection FailureType = "drop_connection"
)

// FailureConfig defines how and when to inject one failure type.
type FailureConfig struct {
	Type FailureType
	// Probability of triggering, 0.0 to 1.0.
	Probability float64
	// Delay applies to FailureRequestDelay.
	Delay time.Duration
}

// RequestMatcher selects requests by method name and, optionally, params.
type RequestMatcher struct {
	Method string
	// Matcher further narrows by parameters; nil matches any.
	Matcher func(params []any) bool
}

func (m RequestMatcher) matches(method string, params []any) bool {
	if m.Method != method {
		return false
	}
	return m.Matcher == nil || m.Matcher(params)
}

// MatchMethod matches every request with the given method name.
func MatchMethod(method string) RequestMatcher {
	return RequestMatcher{Method: method}
}

// StubResponse is a canned answer for matching requests. Result and Error
// are mutually exclusive; with neither set, the request still executes
// against the backing engine after the stub's failures ran.
type StubResponse struct {
	Matcher  RequestMatcher
	Result   any
	Error    *wirestore.Error
	Failures []FailureConfig
}

// SimpleStubResponse stubs a method with a fixed result.
func SimpleStubResponse(method string, result any) StubResponse {
	return StubResponse{Matcher: MatchMethod(method), Result: result}
}

// ErrorStubResponse stubs a method with a fixed protocol error.
func ErrorStubResponse(method string, code int, message string) StubResponse {
	return StubResponse{Matcher: MatchMethod(method), Error: &wirestore.Error{Code: code, Message: message}}
}

// Server is the fake datastore. Construct with NewServer, then Start.
type Server struct {
	addr     string
	backing  store.Store
	listener net.Listener
	httpSrv  *http.Server
	upgrader websocket.Upgrader

	mu             sync.RWMutex
	stubs          []StubResponse
	globalFailures []FailureConfig
	conns          map[*clientConn]bool
}

type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *clientConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

// NewServer creates a fake datastore bound to addr once started. Use
// "127.0.0.1:0" for a random port.
func NewServer(addr string) *Server {
	s := &Server{
		addr:    addr,
		backing: memstore.New(),
		upgrader: websocket.Upgrader{
			Subprotocols: []string{codec.NameJSON, codec.NameCBOR},
		},
		conns: make(map[*clientConn]bool),
	}
	s.httpSrv = &http.Server{Handler: s}
	return s
}

// Store exposes the backing engine so tests can seed or inspect state
// directly.
func (s *Server) Store() store.Store { return s.backing }

// AddStub appends a stub response.
func (s *Server) AddStub(stub StubResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = append(s.stubs, stub)
}

// ClearStubs removes every stub response.
func (s *Server) ClearStubs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stubs = nil
}

// SetGlobalFailures sets failures applied to every request, checked before
// stub-specific ones.
func (s *Server) SetGlobalFailures(failures []FailureConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFailures = failures
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("fakestore: serve: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() error {
	err := s.httpSrv.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.conn.Close()
	}
	s.conns = make(map[*clientConn]bool)
	s.mu.Unlock()
	return err
}

// Address returns the bound address, useful with a ":0" port.
func (s *Server) Address() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// URL returns the ws:// endpoint clients should dial.
func (s *Server) URL() string {
	return "ws://" + s.Address()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wire, err := codec.ByName(conn.Subprotocol())
	if err != nil {
		wire = codec.JSON()
	}
	msgType := websocket.TextMessage
	if wire.Name() == codec.NameCBOR {
		msgType = websocket.BinaryMessage
	}

	cc := &clientConn{conn: conn}
	s.mu.Lock()
	s.conns[cc] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, cc)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		go s.handle(r.Context(), cc, wire, msgType, data)
	}
}

func (s *Server) handle(ctx context.Context, cc *clientConn, wire codec.Codec, msgType int, data []byte) {
	var req wirestore.Request
	if err := wire.Unmarshal(data, &req); err != nil {
		s.respond(cc, wire, msgType, &wirestore.Response{
			Error: &wirestore.Error{Code: wirestore.CodeParse, Message: err.Error()},
		})
		return
	}

	stub := s.matchStub(req.Method, req.Params)
	if !s.runFailures(cc, stub) {
		return
	}

	res := &wirestore.Response{ID: req.ID}
	switch {
	case stub != nil && stub.Error != nil:
		res.Error = stub.Error
	case stub != nil && stub.Result != nil:
		res.Result = stub.Result
	default:
		result, err := wirestore.Execute(ctx, s.backing, req.Method, req.Params)
		if err != nil {
			res.Error = wirestore.ErrorFor(err)
		} else {
			res.Result = result
		}
	}
	s.respond(cc, wire, msgType, res)
}

func (s *Server) matchStub(method string, params []any) *StubResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.stubs {
		if s.stubs[i].Matcher.matches(method, params) {
			return &s.stubs[i]
		}
	}
	return nil
}

// runFailures applies global then stub failures. It reports whether request
// processing should continue.
func (s *Server) runFailures(cc *clientConn, stub *StubResponse) bool {
	s.mu.RLock()
	failures := make([]FailureConfig, 0, len(s.globalFailures))
	failures = append(failures, s.globalFailures...)
	s.mu.RUnlock()
	if stub != nil {
		failures = append(failures, stub.Failures...)
	}

	for _, f := range failures {
		if f.Probability < 1.0 && rand.Float64() >= f.Probability {
			continue
		}
		switch f.Type {
		case FailureRequestDelay:
			time.Sleep(f.Delay)
		case FailureInvalidResponse:
			junk := make([]byte, 32)
			_, _ = cryptorand.Read(junk)
			_ = cc.write(websocket.BinaryMessage, junk)
			return false
		case FailureDropConnection:
			_ = cc.conn.NetConn().Close()
			return false
		case FailureNone:
		}
	}
	return true
}

func (s *Server) respond(cc *clientConn, wire codec.Codec, msgType int, res *wirestore.Response) {
	data, err := wire.Marshal(res)
	if err != nil {
		log.Printf("fakestore: marshal response: %v", err)
		return
	}
	if err := cc.write(msgType, data); err != nil {
		log.Printf("fakestore: write response: %v", err)
	}
}

