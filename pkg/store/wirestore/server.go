package wirestore

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/anyclass/anyclass/internal/codec"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
)

// Handler serves an engine to remote clients over the WebSocket RPC
// protocol; anyclassd mounts it under /1/store. The codec is negotiated
// through the WebSocket subprotocol, defaulting to JSON. Requests on one
// connection execute concurrently, matching the client's multiplexing.
func Handler(st store.Store, log zerolog.Logger) http.Handler {
	return &server{
		st:  st,
		log: log,
		upgrader: gorilla.Upgrader{
			Subprotocols: []string{codec.NameJSON, codec.NameCBOR},
		},
	}
}

type server struct {
	st       store.Store
	log      zerolog.Logger
	upgrader gorilla.Upgrader
}

// serverConn serializes frame writes; request handlers run concurrently.
type serverConn struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

func (c *serverConn) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, data)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("store endpoint upgrade failed")
		return
	}
	defer conn.Close()

	wire, err := codec.ByName(conn.Subprotocol())
	if err != nil {
		wire = codec.JSON()
	}
	msgType := gorilla.TextMessage
	if wire.Name() == codec.NameCBOR {
		msgType = gorilla.BinaryMessage
	}
	sc := &serverConn{conn: conn}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorilla.IsUnexpectedCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				s.log.Debug().Err(err).Msg("store connection closed")
			}
			return
		}
		go s.handle(r.Context(), sc, wire, msgType, data)
	}
}

func (s *server) handle(ctx context.Context, sc *serverConn, wire codec.Codec, msgType int, data []byte) {
	var req Request
	if err := wire.Unmarshal(data, &req); err != nil {
		s.respond(sc, wire, msgType, &Response{
			Error: &Error{Code: CodeParse, Message: err.Error()},
		})
		return
	}
	res := &Response{ID: req.ID}
	result, err := Execute(ctx, s.st, req.Method, req.Params)
	if err != nil {
		res.Error = ErrorFor(err)
	} else {
		res.Result = result
	}
	s.respond(sc, wire, msgType, res)
}

func (s *server) respond(sc *serverConn, wire codec.Codec, msgType int, res *Response) {
	data, err := wire.Marshal(res)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal response")
		return
	}
	if err := sc.write(msgType, data); err != nil {
		s.log.Debug().Err(err).Msg("write response")
	}
}

// Execute runs one decoded request against an engine and returns the
// interchange-form result. Handler and the test server share it.
func Execute(ctx context.Context, st store.Store, method string, params []any) (any, error) {
	switch method {
	case MethodInsert:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		fields, err := fieldsArg(method, params, 1)
		if err != nil {
			return nil, err
		}
		rec, err := st.Insert(ctx, className, fields)
		if err != nil {
			return nil, err
		}
		return rec.Any(), nil

	case MethodGetByID:
		className, objectID, err := classAndID(method, params)
		if err != nil {
			return nil, err
		}
		rec, err := st.GetByID(ctx, className, objectID)
		if err != nil {
			return nil, err
		}
		return rec.Any(), nil

	case MethodQuery:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		preds, err := PredicatesFromWire(arg(params, 1))
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		limit, err := intArg(method, params, 2)
		if err != nil {
			return nil, err
		}
		skip, err := intArg(method, params, 3)
		if err != nil {
			return nil, err
		}
		recs, err := st.Query(ctx, className, preds, limit, skip)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(recs))
		for _, rec := range recs {
			out = append(out, rec.Any())
		}
		return out, nil

	case MethodUpdate:
		className, objectID, err := classAndID(method, params)
		if err != nil {
			return nil, err
		}
		fields, err := fieldsArg(method, params, 2)
		if err != nil {
			return nil, err
		}
		rec, err := st.Update(ctx, className, objectID, fields)
		if err != nil {
			return nil, err
		}
		return rec.Any(), nil

	case MethodDelete:
		className, objectID, err := classAndID(method, params)
		if err != nil {
			return nil, err
		}
		if err := st.Delete(ctx, className, objectID); err != nil {
			return nil, err
		}
		return true, nil

	case MethodBulkInsert:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		items, ok := arg(params, 1).([]any)
		if !ok {
			return nil, formatArgError(method, 1, "array", arg(params, 1))
		}
		batch := make([]map[string]models.Value, 0, len(items))
		for i, item := range items {
			fields, err := wireFields(item)
			if err != nil {
				return nil, fmt.Errorf("%s: params[1][%d]: %w", method, i, err)
			}
			batch = append(batch, fields)
		}
		ids, err := st.BulkInsert(ctx, className, batch)
		if err != nil {
			return nil, err
		}
		return ids, nil

	case MethodCount:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		preds, err := PredicatesFromWire(arg(params, 1))
		if err != nil {
			return nil, &Error{Code: CodeInvalidParams, Message: err.Error()}
		}
		return st.Count(ctx, className, preds)

	case MethodDefineClass:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		fields, err := fieldTypesArg(method, params, 1)
		if err != nil {
			return nil, err
		}
		if err := st.DefineClass(ctx, className, fields); err != nil {
			return nil, err
		}
		return true, nil

	case MethodListClasses:
		schemas, err := st.ListClasses(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(schemas))
		for _, schema := range schemas {
			out = append(out, SchemaToWire(&schema))
		}
		return out, nil

	case MethodGetClassFields:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		schema, err := st.GetClassFields(ctx, className)
		if err != nil {
			return nil, err
		}
		return SchemaToWire(schema), nil

	case MethodPurgeClass:
		className, err := stringArg(method, params, 0)
		if err != nil {
			return nil, err
		}
		if err := st.PurgeClass(ctx, className); err != nil {
			return nil, err
		}
		return true, nil

	default:
		return nil, &Error{
			Code:    CodeMethodNotFound,
			Message: fmt.Sprintf("unknown method %q", method),
		}
	}
}

func formatArgError(method string, i int, want string, got any) error {
	return fmt.Errorf("%s: params[%d]: expected %s, got %T", method, i, want, got)
}

func arg(params []any, i int) any {
	if i >= len(params) {
		return nil
	}
	return params[i]
}

func stringArg(method string, params []any, i int) (string, error) {
	v := arg(params, i)
	s, ok := v.(string)
	if !ok {
		return "", formatArgError(method, i, "string", v)
	}
	return s, nil
}

func intArg(method string, params []any, i int) (int, error) {
	switch v := arg(params, i).(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		return int(v), nil
	case nil:
		return 0, nil
	default:
		return 0, formatArgError(method, i, "integer", v)
	}
}

func classAndID(method string, params []any) (string, string, error) {
	className, err := stringArg(method, params, 0)
	if err != nil {
		return "", "", err
	}
	objectID, err := stringArg(method, params, 1)
	if err != nil {
		return "", "", err
	}
	return className, objectID, nil
}

func fieldsArg(method string, params []any, i int) (map[string]models.Value, error) {
	fields, err := wireFields(arg(params, i))
	if err != nil {
		return nil, fmt.Errorf("%s: params[%d]: %w", method, i, err)
	}
	return fields, nil
}

func wireFields(raw any) (map[string]models.Value, error) {
	if raw == nil {
		return map[string]models.Value{}, nil
	}
	obj, err := asWireObject(raw)
	if err != nil {
		return nil, err
	}
	return models.FromAnyMap(obj)
}

func fieldTypesArg(method string, params []any, i int) (map[string]models.FieldType, error) {
	raw := arg(params, i)
	out := map[string]models.FieldType{}
	if raw == nil {
		return out, nil
	}
	obj, err := asWireObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: params[%d]: %w", method, i, err)
	}
	for name, v := range obj {
		typeName, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: params[%d]: field %q: expected type name, got %T", method, i, name, v)
		}
		ft, err := models.ParseFieldType(typeName)
		if err != nil {
			return nil, fmt.Errorf("%s: params[%d]: field %q: %w", method, i, name, err)
		}
		out[name] = ft
	}
	return out, nil
}
