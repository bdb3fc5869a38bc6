// Package httpapi binds a dispatcher to HTTP and WebSocket transports. The
// envelope is the contract on every route; HTTP statuses are advisory
// (rejected input 400, missing classes and objects 404, engine failures 500).
package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass"
	"github.com/anyclass/anyclass/pkg/store/wirestore"
)

// Handler builds the HTTP binding over one dispatcher.
//
//	POST /1/operations/{operation}   body = parameter object
//	POST /1/rpc                      body = {id?, operation, params}
//	GET  /1/ws                       one rpc request object per text frame
//	GET  /1/store                    engine RPC for wirestore clients
//	GET  /1/health                   health envelope
//	GET  /metrics                    Prometheus exposition
func Handler(disp *anyclass.Dispatcher, log zerolog.Logger) http.Handler {
	s := &server{disp: disp, log: log}

	r := mux.NewRouter()
	r.Use(requestLogger(log))

	api := r.PathPrefix("/1").Subrouter()
	api.HandleFunc("/operations/{operation}", s.handleOperation).Methods("POST")
	api.HandleFunc("/rpc", s.handleRPC).Methods("POST")
	api.HandleFunc("/ws", s.handleWS).Methods("GET")
	api.Handle("/store", wirestore.Handler(disp.Store(), log)).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	r.HandleFunc("/metrics", handleMetrics).Methods("GET")
	return r
}

type server struct {
	disp     *anyclass.Dispatcher
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// rpcRequest is the request object the rpc route and the WebSocket binding
// accept. The id, when present, is echoed on the response envelope.
type rpcRequest struct {
	ID        any            `json:"id,omitempty"`
	Operation string         `json:"operation"`
	Params    map[string]any `json:"params,omitempty"`
}

func (s *server) handleOperation(w http.ResponseWriter, r *http.Request) {
	params, err := decodeParams(r.Body)
	if err != nil {
		writeEnvelope(w, statusFor(err), anyclass.Fail(err))
		return
	}
	op := anyclass.Operation(mux.Vars(r)["operation"])
	env, err := s.disp.Dispatch(r.Context(), op, params)
	writeEnvelope(w, statusFor(err), env)
}

func (s *server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		verr := &anyclass.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)}
		writeEnvelope(w, statusFor(verr), anyclass.Fail(verr))
		return
	}
	env, err := s.dispatchRequest(r.Context(), req)
	writeEnvelope(w, statusFor(err), env)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	env, _ := s.disp.Dispatch(r.Context(), anyclass.OpHealthCheck, nil)
	writeEnvelope(w, http.StatusOK, env)
}

func handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics.WritePrometheus(w, true)
}

// dispatchRequest runs one rpc request and stamps the request id onto the
// envelope, success or failure.
func (s *server) dispatchRequest(ctx context.Context, req rpcRequest) (anyclass.Envelope, error) {
	if req.Operation == "" {
		err := &anyclass.ValidationError{Reason: "missing operation"}
		env := anyclass.Fail(err)
		env.ID = req.ID
		return env, err
	}
	env, err := s.disp.Dispatch(ctx, anyclass.Operation(req.Operation), req.Params)
	env.ID = req.ID
	return env, err
}

// decodeParams reads an optional JSON object body; an empty body means no
// parameters.
func decodeParams(body io.Reader) (map[string]any, error) {
	var params map[string]any
	err := json.NewDecoder(body).Decode(&params)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &anyclass.ValidationError{Reason: fmt.Sprintf("invalid request body: %v", err)}
	}
	return params, nil
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var validation *anyclass.ValidationError
	if errors.As(err, &validation) {
		return http.StatusBadRequest
	}
	var notFound *anyclass.NotFoundError
	if errors.As(err, &notFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func writeEnvelope(w http.ResponseWriter, status int, env anyclass.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusWriter records the status code for the request log. It passes
// hijacking through so the WebSocket upgrade still works behind it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func requestLogger(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("elapsed", time.Since(start)).
				Msg("request")
		})
	}
}
