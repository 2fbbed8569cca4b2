package remote_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/njoerd114/offsync/internal/devserver"
	"github.com/njoerd114/offsync/internal/model"
	"github.com/njoerd114/offsync/internal/remote"
	syncp "github.com/njoerd114/offsync/internal/sync"
)

const testToken = "secret"

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newDevClient(t *testing.T) (*remote.Client[model.Task], *devserver.Server) {
	t.Helper()
	srv := devserver.New(testToken, discard())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return remote.NewClient[model.Task](ts.URL, testToken, model.CollectionTasks, discard()), srv
}

// stubClient points a client at a handler that answers every request.
func stubClient(t *testing.T, h http.HandlerFunc, opts ...remote.Option) *remote.Client[model.Task] {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return remote.NewClient[model.Task](ts.URL, testToken, model.CollectionTasks, discard(), opts...)
}

func TestClient_CreateUpdateDeleteRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, srv := newDevClient(t)

	created, err := c.Create(ctx, model.Task{Title: "Buy milk", Priority: model.PriorityHigh, Pinned: true}, "tok-1")
	require.NoError(t, err)
	assert.NotEmpty(t, created.RemoteID)
	assert.Equal(t, "tok-1", created.ClientToken)
	assert.Equal(t, "Buy milk", created.Payload.Title)
	assert.Equal(t, model.PriorityHigh, created.Payload.Priority)
	assert.False(t, created.Payload.Pinned, "local-only field must not reach the server")
	assert.False(t, created.LastModified.IsZero())

	updated, err := c.Update(ctx, created.RemoteID, model.Task{Title: "Buy oat milk"})
	require.NoError(t, err)
	assert.Equal(t, "Buy oat milk", updated.Payload.Title)
	assert.True(t, updated.LastModified.After(created.LastModified))

	require.NoError(t, c.Delete(ctx, created.RemoteID))
	assert.Empty(t, srv.Items(model.CollectionTasks))
}

func TestClient_DuplicateToken(t *testing.T) {
	ctx := context.Background()
	c, _ := newDevClient(t)

	first, err := c.Create(ctx, model.Task{Title: "a"}, "tok-1")
	require.NoError(t, err)

	_, err = c.Create(ctx, model.Task{Title: "a"}, "tok-1")
	var dup *syncp.DuplicateTokenError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.RemoteID, dup.RemoteID)
	assert.Equal(t, "tok-1", dup.ClientToken)
}

func TestClient_NotFound(t *testing.T) {
	ctx := context.Background()
	c, _ := newDevClient(t)

	_, err := c.Update(ctx, "srv-404", model.Task{Title: "a"})
	assert.ErrorIs(t, err, syncp.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "srv-404"), syncp.ErrNotFound)
}

func TestClient_ListPagesAndTombstones(t *testing.T) {
	ctx := context.Background()
	c, srv := newDevClient(t)

	for _, title := range []string{"a", "b", "c"} {
		_, err := srv.Seed(model.CollectionTasks, model.Task{Title: title}.RemoteShape())
		require.NoError(t, err)
	}
	items := srv.Items(model.CollectionTasks)
	require.NoError(t, srv.SoftDelete(model.CollectionTasks, items[0].ID))

	p1, err := c.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, p1.CurrentPage)
	assert.Equal(t, 2, p1.LastPage)
	assert.True(t, p1.More())
	require.Len(t, p1.Items, 2)
	assert.True(t, p1.Items[0].Deleted)
	assert.Equal(t, "b", p1.Items[1].Payload.Title)

	p2, err := c.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.False(t, p2.More())
	require.Len(t, p2.Items, 1)
	assert.Equal(t, "c", p2.Items[0].Payload.Title)
}

func TestClient_BearerAndIdempotencyHeaders(t *testing.T) {
	var auth, key, ua atomic.Value
	c := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get(remote.HeaderAuthorization))
		key.Store(r.Header.Get(remote.HeaderIdempotencyKey))
		ua.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"srv-1","last_modified":"2026-01-01T00:00:00Z","attributes":{"title":"a"}}}`)
	}, remote.WithUserAgent("offsync-test"))

	_, err := c.Create(context.Background(), model.Task{Title: "a"}, "tok-9")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+testToken, auth.Load())
	assert.Equal(t, "tok-9", key.Load())
	assert.Equal(t, "offsync-test", ua.Load())
}

func TestClient_MalformedResponses(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"not json":            {http.StatusOK, `<html>oops</html>`},
		"null data":           {http.StatusOK, `{"data":null}`},
		"missing data":        {http.StatusOK, `{"meta":{}}`},
		"item without id":     {http.StatusOK, `{"data":{"attributes":{"title":"a"}}}`},
		"missing attributes":  {http.StatusOK, `{"data":{"id":"srv-1"}}`},
		"attributes mismatch": {http.StatusOK, `{"data":{"id":"srv-1","attributes":{"title":42}}}`},
		"conflict without id": {http.StatusConflict, `{"error":{"code":"duplicate_token"}}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			})
			_, err := c.Create(context.Background(), model.Task{Title: "a"}, "tok-1")
			assert.ErrorIs(t, err, syncp.ErrMalformedResponse)
		})
	}
}

func TestClient_ListMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"missing meta":    `{"data":[]}`,
		"data not a list": `{"data":{"id":"x"},"meta":{"current_page":1,"last_page":1}}`,
		"null data":       `{"data":null,"meta":{"current_page":1,"last_page":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, body)
			})
			_, err := c.List(context.Background(), 1, 10)
			assert.ErrorIs(t, err, syncp.ErrMalformedResponse)
		})
	}
}

func TestClient_RejectionIsPermanent(t *testing.T) {
	var calls atomic.Int32
	c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"error":{"code":"invalid","message":"title too long"}}`)
	}, remote.WithMaxAttempts(3))

	_, err := c.Update(context.Background(), "srv-1", model.Task{Title: "a"})
	var rejected *syncp.RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.Code)
	assert.Equal(t, "title too long", rejected.Message)
	assert.Equal(t, "update", rejected.Operation)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, syncp.IsSoft(err))
}

func TestClient_UnstructuredRejectionTruncated(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write(long)
	})

	err := c.Delete(context.Background(), "srv-1")
	var rejected *syncp.RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Len(t, rejected.Message, 203)
}

func TestClient_ServerErrorRetried(t *testing.T) {
	var calls atomic.Int32
	c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}, remote.WithMaxAttempts(2))

	require.NoError(t, c.Delete(context.Background(), "srv-1"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ServerErrorExhausted(t *testing.T) {
	c := stubClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, remote.WithMaxAttempts(1))

	err := c.Delete(context.Background(), "srv-1")
	var rejected *syncp.RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusInternalServerError, rejected.Code)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := remote.NewClient[model.Task](url, testToken, model.CollectionTasks, discard(), remote.WithMaxAttempts(1))
	_, err := c.List(context.Background(), 1, 10)
	assert.ErrorIs(t, err, syncp.ErrNetworkUnavailable)
	assert.False(t, errors.Is(err, syncp.ErrMalformedResponse))
}

func TestClient_Unauthorized(t *testing.T) {
	srv := devserver.New(testToken, discard())
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c := remote.NewClient[model.Task](ts.URL, "wrong", model.CollectionTasks, discard())
	_, err := c.List(context.Background(), 1, 10)
	var rejected *syncp.RemoteRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnauthorized, rejected.Code)
}
