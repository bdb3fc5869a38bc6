package wirestore_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/internal/codec"
	"github.com/anyclass/anyclass/internal/storetest"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
	"github.com/anyclass/anyclass/pkg/store/memstore"
	"github.com/anyclass/anyclass/pkg/store/wirestore"
)

func startHandler(t *testing.T) string {
	t.Helper()
	st := memstore.New()
	t.Cleanup(func() { _ = st.Close() })
	srv := httptest.NewServer(wirestore.Handler(st, zerolog.Nop()))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func handlerFactory(codecName string) storetest.Factory {
	return func(t *testing.T) store.Store {
		client, err := wirestore.Connect(context.Background(), wirestore.Config{
			URL:   startHandler(t),
			Codec: codecName,
		})
		require.NoError(t, err)
		return client
	}
}

// The served engine passes the same conformance suite as the engines it
// fronts.
func TestHandlerConformance(t *testing.T) {
	storetest.Run(t, handlerFactory(codec.NameJSON))
}

func TestHandlerNegotiatesCBOR(t *testing.T) {
	client := handlerFactory(codec.NameCBOR)(t)
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	rec, err := client.Insert(ctx, "Task", map[string]models.Value{
		"title": models.String("over cbor"),
		"prio":  models.Number(3),
	})
	require.NoError(t, err)

	got, err := client.GetByID(ctx, "Task", rec.ObjectID)
	require.NoError(t, err)
	assert.Equal(t, rec.Fields["title"], got.Fields["title"])
	assert.Equal(t, rec.Fields["prio"], got.Fields["prio"])
}

func dialRaw(t *testing.T, url string) *gorilla.Conn {
	t.Helper()
	conn, res, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	res.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readResponse(t *testing.T, conn *gorilla.Conn) wirestore.Response {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var res wirestore.Response
	require.NoError(t, json.Unmarshal(data, &res))
	return res
}

func TestHandlerAnswersParseFailure(t *testing.T) {
	conn := dialRaw(t, startHandler(t))

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte("not a frame")))
	res := readResponse(t, conn)
	require.NotNil(t, res.Error)
	assert.Equal(t, wirestore.CodeParse, res.Error.Code)
}

func TestHandlerAnswersUnknownMethod(t *testing.T) {
	conn := dialRaw(t, startHandler(t))

	require.NoError(t, conn.WriteMessage(gorilla.TextMessage, []byte(`{"id":"x","method":"frobnicate"}`)))
	res := readResponse(t, conn)
	assert.Equal(t, "x", res.ID)
	require.NotNil(t, res.Error)
	assert.Equal(t, wirestore.CodeMethodNotFound, res.Error.Code)
	assert.Contains(t, res.Error.Message, "frobnicate")
}
