package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinayprograms/gatedagent/internal/agent"
	"github.com/vinayprograms/gatedagent/internal/logging"
	"github.com/vinayprograms/gatedagent/internal/trace"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	calls   atomic.Int32
	block   chan struct{}
	panics  bool
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, query, runID string) agent.Result {
	f.calls.Add(1)
	if f.panics {
		panic("boom")
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
		}
	}
	if runID == "" {
		runID = "generated"
	}
	return agent.Result{ID: runID, Query: query, Status: agent.StatusSuccess, Answer: "answer to " + query}
}

func TestHandle(t *testing.T) {
	svc := NewService(&fakeRunner{}, 2, logging.Discard())

	var res agent.Result
	require.NoError(t, json.Unmarshal(svc.handle(context.Background(), []byte(`{"query":"Rome","run_id":"r1"}`)), &res))
	assert.Equal(t, "r1", res.ID)
	assert.Equal(t, "answer to Rome", res.Answer)

	var e ErrorResponse
	require.NoError(t, json.Unmarshal(svc.handle(context.Background(), []byte(`not json`)), &e))
	assert.Contains(t, e.Error, "invalid request")

	require.NoError(t, json.Unmarshal(svc.handle(context.Background(), []byte(`{"query":"  "}`)), &e))
	assert.Equal(t, "query is required", e.Error)

	require.NoError(t, json.Unmarshal(svc.handle(context.Background(), []byte(`{"query":"x","run_id":"../etc"}`)), &e))
	assert.Contains(t, e.Error, "path separators")
}

func TestServiceBoundsConcurrency(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := NewService(runner, 1, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = svc.Run(context.Background(), RunRequest{Query: "first"})
	}()
	<-runner.started

	_, err := svc.Run(context.Background(), RunRequest{Query: "second"})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, int32(1), runner.calls.Load())

	// the raw handler answers immediately as well
	reply := make(chan []byte, 1)
	go func() { reply <- svc.handle(context.Background(), []byte(`{"query":"third"}`)) }()
	select {
	case out := <-reply:
		var e ErrorResponse
		require.NoError(t, json.Unmarshal(out, &e))
		assert.Equal(t, ErrBusy.Error(), e.Error)
	case <-time.After(time.Second):
		t.Fatal("request was queued instead of rejected")
	}

	close(runner.block)
	<-done

	_, err = svc.Run(context.Background(), RunRequest{Query: "after"})
	assert.NoError(t, err)
}

func TestRunEndpointBusy(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 1)}
	svc := NewService(runner, 1, nil)
	r := NewRouter(svc, nil, "test")

	done := make(chan struct{})
	go func() {
		defer close(done)
		do(r, http.MethodPost, "/v1/run", `{"query":"first"}`)
	}()
	<-runner.started

	w := do(r, http.MethodPost, "/v1/run", `{"query":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "server busy")

	close(runner.block)
	<-done
}

func newTestRouter(t *testing.T, runner Runner) (*gin.Engine, *trace.FileStore) {
	t.Helper()
	store, err := trace.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewRouter(NewService(runner, 2, logging.Discard()), store, "test"), store
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r, _ := newTestRouter(t, &fakeRunner{})
	w := do(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"version":"test"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeRunner{})
	w := do(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRunEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeRunner{})

	w := do(r, http.MethodPost, "/v1/run", `{"query":"Paris"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var res agent.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "Paris", res.Query)

	w = do(r, http.MethodPost, "/v1/run", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/v1/run", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRunEndpointRecoversPanics(t *testing.T) {
	r, _ := newTestRouter(t, &fakeRunner{panics: true})
	w := do(r, http.MethodPost, "/v1/run", `{"query":"Paris"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
}

func TestTraceEndpoints(t *testing.T) {
	r, store := newTestRouter(t, &fakeRunner{})

	w := do(r, http.MethodGet, "/v1/traces", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"runs":[]}`, w.Body.String())

	final := "done"
	require.NoError(t, store.Save(context.Background(), &trace.Trace{
		RunID:     "abc",
		Query:     "Rome",
		Status:    "success",
		StartedAt: time.Now(),
		Steps:     []trace.Step{},
		Final:     &final,
	}))

	w = do(r, http.MethodGet, "/v1/traces/abc", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got trace.Trace
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&got))
	assert.Equal(t, "Rome", got.Query)

	w = do(r, http.MethodGet, "/v1/traces", "")
	assert.Contains(t, w.Body.String(), `"run_id":"abc"`)

	w = do(r, http.MethodGet, "/v1/traces/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouterWithoutStore(t *testing.T) {
	r := NewRouter(NewService(&fakeRunner{}, 1, nil), nil, "v")
	w := do(r, http.MethodGet, "/v1/traces/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTPShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- ServeHTTP(ctx, "127.0.0.1:0", http.NotFoundHandler(), logging.Discard())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
