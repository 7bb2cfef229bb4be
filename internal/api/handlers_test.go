// SPDX-License-Identifier: MIT

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/coordinator"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/flags"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/locks"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/progress"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/registry"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/remote"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"
)

type testServer struct {
	*Server
	cache   *store.Store
	backend *remote.MemoryBackend
	reg     *registry.Registry
	bus     *progress.Bus
	coord   *coordinator.Coordinator
	http    *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cache := store.New()
	backend := remote.NewMemoryBackend()
	reg := registry.New()
	lockMgr := locks.NewManager()
	bus := progress.NewBus()
	coord := coordinator.New(cache, lockMgr, reg, backend, coordinator.Config{ReconcileDelay: time.Hour})

	srv := NewServer(coord, cache, reg, bus, flags.Disabled)
	ts := httptest.NewServer(srv.Router(Config{RateLimitPerMinute: 1000}))
	t.Cleanup(ts.Close)
	t.Cleanup(bus.Shutdown)

	return &testServer{
		Server: srv, cache: cache, backend: backend,
		reg: reg, bus: bus, coord: coord, http: ts,
	}
}

func (ts *testServer) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.http.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestMutate_CommitRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/api/v1/mutations", map[string]any{
		"kind": "create",
		"entity": map[string]any{
			"kind": "video", "parent": "ch1", "title": "Intro",
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Status string       `json:"status"`
		Entity store.Entity `json:"entity"`
	}](t, resp)
	assert.Equal(t, "committed", body.Status)
	assert.NotEmpty(t, body.Entity.ID)
	assert.False(t, strings.HasPrefix(body.Entity.ID, "tmp-"))

	// The committed entity is visible through the read endpoint.
	listResp, err := http.Get(ts.http.URL + "/api/v1/parents/ch1/entities")
	require.NoError(t, err)
	list := decode[struct {
		Entities []store.Entity `json:"entities"`
	}](t, listResp)
	require.Len(t, list.Entities, 1)
	assert.Equal(t, "Intro", list.Entities[0].Title)
}

func TestMutate_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.cache.Upsert(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Title: "Old", Status: store.StatusReady})
	ts.backend.Seed(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Title: "Old", Status: store.StatusReady})

	// Unknown entity.
	resp := ts.post(t, "/api/v1/mutations", map[string]any{
		"kind":   "rename",
		"entity": map[string]any{"id": "ghost", "title": "x"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	// Remote refusal surfaces as bad gateway, after rollback.
	ts.backend.FailNext = "refused"
	resp = ts.post(t, "/api/v1/mutations", map[string]any{
		"kind":   "rename",
		"entity": map[string]any{"id": "v1", "title": "New"},
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	_ = resp.Body.Close()
	got, _ := ts.cache.Get("v1")
	assert.Equal(t, "Old", got.Title)

	// Malformed body.
	badResp, err := http.Post(ts.http.URL+"/api/v1/mutations", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)
	_ = badResp.Body.Close()
}

func TestMutate_DuplicateIsIgnoredNotFailed(t *testing.T) {
	ts := newTestServer(t)
	ts.cache.Upsert(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Title: "Old", Status: store.StatusReady})
	ts.backend.Seed(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Title: "Old", Status: store.StatusReady})
	ts.backend.Latency = 150 * time.Millisecond

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		resp := ts.post(t, "/api/v1/mutations", map[string]any{
			"kind":   "rename",
			"entity": map[string]any{"id": "v1", "title": "First"},
		})
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}()

	require.Eventually(t, func() bool { return ts.reg.InProgress("rename:v1") }, time.Second, time.Millisecond)
	resp := ts.post(t, "/api/v1/mutations", map[string]any{
		"kind":   "rename",
		"entity": map[string]any{"id": "v1", "title": "Second"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "ignored", body["status"])
	<-firstDone
}

func TestProgress_PublishAndConsume(t *testing.T) {
	ts := newTestServer(t)
	ts.cache.Upsert(store.Entity{ID: "v1", Kind: store.KindVideo, Parent: "ch1", Status: store.StatusPending})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		ts.coord.ConsumeProgress(ctx, ts.bus, flags.Disabled)
	}()

	// Reposting until the consumer has it tolerates subscription racing
	// the first event; re-delivery is idempotent.
	require.Eventually(t, func() bool {
		resp := ts.post(t, "/api/v1/progress", map[string]any{
			"operationId": "op-1", "resourceKey": "v1", "percentComplete": 42,
		})
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		_ = resp.Body.Close()
		pct, ok := ts.cache.Progress("op-1")
		return ok && pct == 42
	}, time.Second, 5*time.Millisecond)

	// 100 percent routes to the completion topic and pins at 100.
	resp := ts.post(t, "/api/v1/progress", map[string]any{
		"operationId": "op-1", "resourceKey": "v1", "percentComplete": 100,
	})
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	_ = resp.Body.Close()
	require.Eventually(t, func() bool {
		pct, _ := ts.cache.Progress("op-1")
		return pct == 100
	}, time.Second, time.Millisecond)

	cancel()
	<-consumerDone
}

func TestProgress_RequiresOperationID(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.post(t, "/api/v1/progress", map[string]any{"resourceKey": "v1", "percentComplete": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestOperations_GetAndCancel(t *testing.T) {
	ts := newTestServer(t)
	require.True(t, ts.reg.Start("op-1", "rename:v1", "v1"))

	resp, err := http.Get(ts.http.URL + "/api/v1/operations/op-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		ID        string `json:"id"`
		Completed bool   `json:"completed"`
		Cancelled bool   `json:"cancelled"`
	}](t, resp)
	assert.Equal(t, "op-1", body.ID)
	assert.False(t, body.Completed)

	req, err := http.NewRequest(http.MethodDelete, ts.http.URL+"/api/v1/operations/op-1", nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, delResp.StatusCode)
	_ = delResp.Body.Close()

	op, ok := ts.reg.Get("op-1")
	require.True(t, ok)
	assert.True(t, op.Cancelled)

	resp, err = http.Get(ts.http.URL + "/api/v1/operations/ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRequestIDPropagation(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.http.URL+"/healthz", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-Id", "req-abc")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, "req-abc", resp.Header.Get("X-Request-Id"))
	_ = resp.Body.Close()

	// A missing request id gets generated.
	resp, err = http.Get(ts.http.URL + "/healthz")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	_ = resp.Body.Close()
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t)
	limited := httptest.NewServer(ts.Server.Router(Config{RateLimitPerMinute: 3}))
	defer limited.Close()

	var last int
	for i := 0; i < 5; i++ {
		resp, err := http.Get(limited.URL + "/healthz")
		require.NoError(t, err)
		last = resp.StatusCode
		_ = resp.Body.Close()
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
