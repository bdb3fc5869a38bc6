package wirestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anyclass/anyclass/internal/codec"
	"github.com/anyclass/anyclass/internal/fakestore"
	"github.com/anyclass/anyclass/internal/storetest"
	"github.com/anyclass/anyclass/pkg/models"
	"github.com/anyclass/anyclass/pkg/store"
	"github.com/anyclass/anyclass/pkg/store/wirestore"
)

func startServer(t *testing.T) *fakestore.Server {
	t.Helper()
	server := fakestore.NewServer("127.0.0.1:0")
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		if err := server.Stop(); err != nil {
			t.Logf("stop server: %v", err)
		}
	})
	return server
}

func connect(t *testing.T, server *fakestore.Server, cfg wirestore.Config) *wirestore.Client {
	t.Helper()
	if cfg.URL == "" {
		cfg.URL = server.URL()
	}
	client, err := wirestore.Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func remoteFactory(codecName string) storetest.Factory {
	return func(t *testing.T) store.Store {
		return connect(t, startServer(t), wirestore.Config{Codec: codecName})
	}
}

// The remote engine passes the same conformance suite as the local ones,
// over both wire encodings.
func TestConformanceJSON(t *testing.T) {
	storetest.Run(t, remoteFactory(codec.NameJSON))
}

func TestConformanceCBOR(t *testing.T) {
	storetest.Run(t, remoteFactory(codec.NameCBOR))
}

func TestUnknownCodecRejected(t *testing.T) {
	_, err := wirestore.Connect(context.Background(), wirestore.Config{
		URL:   "ws://127.0.0.1:1",
		Codec: "msgpack",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown codec "msgpack"`)
}

func TestDialFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := wirestore.Connect(ctx, wirestore.Config{URL: "ws://127.0.0.1:1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial ws://127.0.0.1:1")
}

func TestCallTimeout(t *testing.T) {
	server := startServer(t)
	server.SetGlobalFailures([]fakestore.FailureConfig{{
		Type:        fakestore.FailureRequestDelay,
		Probability: 1.0,
		Delay:       2 * time.Second,
	}})
	client := connect(t, server, wirestore.Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := client.Count(context.Background(), "tasks", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestCallerContextCancelsCall(t *testing.T) {
	server := startServer(t)
	server.SetGlobalFailures([]fakestore.FailureConfig{{
		Type:        fakestore.FailureRequestDelay,
		Probability: 1.0,
		Delay:       2 * time.Second,
	}})
	client := connect(t, server, wirestore.Config{Timeout: -1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := client.Count(ctx, "tasks", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUndecodableResponseTimesOut(t *testing.T) {
	server := startServer(t)
	server.AddStub(fakestore.StubResponse{
		Matcher: fakestore.MatchMethod(wirestore.MethodCount),
		Failures: []fakestore.FailureConfig{{
			Type:        fakestore.FailureInvalidResponse,
			Probability: 1.0,
		}},
	})
	client := connect(t, server, wirestore.Config{Timeout: 150 * time.Millisecond})

	_, err := client.Count(context.Background(), "tasks", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The connection survives a garbage frame; later calls work.
	server.ClearStubs()
	n, err := client.Count(context.Background(), "tasks", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestDroppedConnectionFailsPendingCalls(t *testing.T) {
	server := startServer(t)
	server.SetGlobalFailures([]fakestore.FailureConfig{{
		Type:        fakestore.FailureDropConnection,
		Probability: 1.0,
	}})
	client := connect(t, server, wirestore.Config{})

	_, err := client.Count(context.Background(), "tasks", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")

	// Calls after the drop fail fast instead of hanging.
	start := time.Now()
	_, err = client.Count(context.Background(), "tasks", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
	assert.Less(t, time.Since(start), time.Second)
}

func TestServerErrorKeepsMessageAndKind(t *testing.T) {
	server := startServer(t)
	server.AddStub(fakestore.ErrorStubResponse(
		wirestore.MethodPurgeClass,
		wirestore.CodeClassReferenced,
		"class is referenced by another class: projects is referenced by tasks",
	))
	client := connect(t, server, wirestore.Config{})

	err := client.PurgeClass(context.Background(), "projects")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrClassReferenced)
	assert.EqualError(t, err, "class is referenced by another class: projects is referenced by tasks")
}

func TestCloseIsIdempotent(t *testing.T) {
	server := startServer(t)
	client, err := wirestore.Connect(context.Background(), wirestore.Config{URL: server.URL()})
	require.NoError(t, err)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	_, err = client.Count(context.Background(), "tasks", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection closed")
}

func TestValuesSurviveCBORTransport(t *testing.T) {
	ctx := context.Background()
	server := startServer(t)
	client := connect(t, server, wirestore.Config{Codec: codec.NameCBOR})

	due := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	fields := map[string]models.Value{
		"title": models.String("ship it"),
		"prio":  models.Number(2.5),
		"done":  models.Bool(false),
		"due":   models.Timestamp(due),
		"owner": models.Ref(models.Reference{ClassName: "users", ObjectID: "u1"}),
		"tags":  models.List(models.String("a"), models.Number(1)),
		"meta":  models.Map(map[string]models.Value{"k": models.String("v")}),
		"gone":  models.Null(),
	}

	rec, err := client.Insert(ctx, "tasks", fields)
	require.NoError(t, err)

	got, err := client.GetByID(ctx, "tasks", rec.ObjectID)
	require.NoError(t, err)
	for name, want := range fields {
		assert.True(t, want.Equal(got.Fields[name]), "field %q changed in transit", name)
	}
}
