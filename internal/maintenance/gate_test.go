package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maintenance-gate/internal/metrics"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func get(path string) Request {
	return Request{Method: http.MethodGet, Path: path, Query: url.Values{}}
}

func management(method, key, body string) Request {
	q := url.Values{}
	if key != "" {
		q.Set(AccessKeyParam, key)
	}
	return Request{Method: method, Path: "/maintenance", Query: q, Body: []byte(body)}
}

func mustHandle(t *testing.T, g *Gate, req Request) *Response {
	t.Helper()
	resp, err := g.Handle(context.Background(), req)
	require.NoError(t, err)
	return resp
}

func TestNewGateStartsInDefaultMode(t *testing.T) {
	g := New(Options{})

	assert.Equal(t, State{Mode: ModeDefault}, g.State())
	assert.Equal(t, DefaultManagementPath, g.opts.ManagementPath)
	assert.Equal(t, DefaultProtectedPrefix, g.opts.ProtectedPrefix)
	assert.Equal(t, DefaultRefreshInterval, g.opts.RefreshInterval)
}

func TestActivationBlocksProtectedRequests(t *testing.T) {
	g := New(Options{})

	resp := mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"down"}}`))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, stateResponse{
		Message:         "Server in maintenance mode now",
		ResponseOptions: &ResponseOptions{StatusCode: 503, Body: map[string]any{"msg": "down"}},
	}, resp.Body)

	resp = mustHandle(t, g, get("/api/anything"))
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.Status)
	assert.Equal(t, map[string]any{"msg": "down"}, resp.Body)

	resp = mustHandle(t, g, Request{Method: http.MethodPut, Path: "/v2/api/orders"})
	require.NotNil(t, resp, "prefix is matched anywhere in the path")
	assert.Equal(t, 503, resp.Status)
}

func TestUnrelatedPathsPassThroughInEveryMode(t *testing.T) {
	g := New(Options{})
	paths := []string{"/", "/health", "/static/app.js", "/maintenance/logs"}

	for _, p := range paths {
		assert.Nil(t, mustHandle(t, g, get(p)), p)
	}

	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{}}`))
	for _, p := range paths {
		assert.Nil(t, mustHandle(t, g, get(p)), p)
	}
}

func TestDeactivationUnblocksButKeepsOptions(t *testing.T) {
	g := New(Options{})
	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"down"}}`))

	resp := mustHandle(t, g, management(http.MethodDelete, "", ""))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, stateResponse{
		Message:         "Server in default mode now",
		ResponseOptions: &ResponseOptions{StatusCode: 503, Body: map[string]any{"msg": "down"}},
	}, resp.Body)

	assert.Nil(t, mustHandle(t, g, get("/api/anything")))

	// reactivating without a body reuses the retained options
	mustHandle(t, g, management(http.MethodPost, "", ""))
	resp = mustHandle(t, g, get("/api/anything"))
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.Status)
	assert.Equal(t, map[string]any{"msg": "down"}, resp.Body)
}

func TestStatusQueryReportsMode(t *testing.T) {
	g := New(Options{})

	resp := mustHandle(t, g, management(http.MethodGet, "", ""))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, messageResponse{Message: "Server in default mode now"}, resp.Body)

	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":418,"body":{"msg":"teapot","retry":[1,2]}}`))
	resp = mustHandle(t, g, management(http.MethodGet, "", ""))
	assert.Equal(t, messageResponse{Message: "Server in maintenance mode now"}, resp.Body)
	assert.Equal(t, State{
		Mode: ModeMaintenance,
		ResponseOptions: &ResponseOptions{
			StatusCode: 418,
			Body:       map[string]any{"msg": "teapot", "retry": []any{float64(1), float64(2)}},
		},
	}, g.State())
}

func TestAccessKeyRequired(t *testing.T) {
	var writes int
	g := New(Options{
		AccessKey: "s3cret",
		WriteState: func(context.Context, State) error {
			writes++
			return nil
		},
	})

	for _, key := range []string{"", "wrong", "s3cret "} {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodPatch} {
			resp := mustHandle(t, g, management(method, key, `{"statusCode":503,"body":{}}`))
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.Status)
			assert.Equal(t, messageResponse{Message: "You not authorized to perform this action"}, resp.Body)
		}
	}
	assert.Zero(t, writes)

	resp := mustHandle(t, g, management(http.MethodGet, "s3cret", ""))
	assert.Equal(t, messageResponse{Message: "Server in default mode now"}, resp.Body)

	resp = mustHandle(t, g, management(http.MethodPost, "s3cret", `{"statusCode":503,"body":{}}`))
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, 1, writes)
}

func TestUnsupportedVerb(t *testing.T) {
	g := New(Options{})

	resp := mustHandle(t, g, management(http.MethodPatch, "", ""))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.Status)
	assert.Equal(t, messageResponse{Message: "PATCH is not allowed for this endpoint"}, resp.Body)
	assert.Equal(t, ModeDefault, g.State().Mode)
}

func TestMalformedActivationBodyChangesNothing(t *testing.T) {
	var writes int
	g := New(Options{WriteState: func(context.Context, State) error {
		writes++
		return nil
	}})

	for _, body := range []string{`{"statusCode":`, `{"statusCode":42}`, `{"body":{"msg":"x"}}`, `[1,2]`} {
		resp := mustHandle(t, g, management(http.MethodPost, "", body))
		require.NotNil(t, resp, body)
		assert.Equal(t, http.StatusBadRequest, resp.Status, body)
	}
	assert.Equal(t, State{Mode: ModeDefault}, g.State())
	assert.Zero(t, writes)
}

func TestActivationWithoutOptionsServesEmptyUnavailable(t *testing.T) {
	g := New(Options{})

	resp := mustHandle(t, g, management(http.MethodPost, "", ""))
	require.NotNil(t, resp)
	assert.Equal(t, stateResponse{Message: "Server in maintenance mode now"}, resp.Body)

	resp = mustHandle(t, g, get("/api/users"))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Nil(t, resp.Body)
}

func TestActivationIsIdempotent(t *testing.T) {
	body := `{"statusCode":503,"body":{"msg":"down"}}`

	once := New(Options{})
	mustHandle(t, once, management(http.MethodPost, "", body))

	twice := New(Options{})
	first := mustHandle(t, twice, management(http.MethodPost, "", body))
	second := mustHandle(t, twice, management(http.MethodPost, "", body))

	assert.Equal(t, once.State(), twice.State())
	assert.Equal(t, first, second)
}

func TestBlockingTakesPrecedenceOverManagement(t *testing.T) {
	g := New(Options{ProtectedPrefix: "/api", ManagementPath: "/api/maintenance"})

	mustHandle(t, g, Request{
		Method: http.MethodPost,
		Path:   "/api/maintenance",
		Body:   []byte(`{"statusCode":503,"body":{"msg":"down"}}`),
	})
	require.Equal(t, ModeMaintenance, g.State().Mode)

	// the management endpoint is now itself blocked, so DELETE cannot reach it
	resp := mustHandle(t, g, Request{Method: http.MethodDelete, Path: "/api/maintenance"})
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.Status)
	assert.Equal(t, ModeMaintenance, g.State().Mode)
}

func TestRefreshHonoursInterval(t *testing.T) {
	clock := newClock()
	var reads int
	shared := &State{Mode: ModeMaintenance, ResponseOptions: &ResponseOptions{StatusCode: 503, Body: map[string]any{"msg": "shared"}}}

	g := New(Options{
		RefreshInterval: time.Minute,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			reads++
			return shared, nil
		},
	})

	clock.Advance(time.Minute - time.Millisecond)
	assert.Nil(t, mustHandle(t, g, get("/api/x")))
	assert.Zero(t, reads)

	clock.Advance(time.Millisecond)
	resp := mustHandle(t, g, get("/api/x"))
	assert.Equal(t, 1, reads)
	require.NotNil(t, resp)
	assert.Equal(t, 503, resp.Status)

	// fresh again until another full interval passes
	clock.Advance(30 * time.Second)
	mustHandle(t, g, get("/api/x"))
	assert.Equal(t, 1, reads)

	clock.Advance(45 * time.Second)
	mustHandle(t, g, get("/api/x"))
	assert.Equal(t, 2, reads)
}

func TestEmptyRefreshLeavesStateUntouched(t *testing.T) {
	clock := newClock()
	var reads int
	g := New(Options{
		RefreshInterval: time.Second,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			reads++
			return nil, nil
		},
	})
	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"local"}}`))
	before := g.State()

	clock.Advance(time.Second)
	resp := mustHandle(t, g, get("/api/x"))
	assert.Equal(t, 1, reads)
	require.NotNil(t, resp)
	assert.Equal(t, map[string]any{"msg": "local"}, resp.Body)
	assert.Equal(t, before, g.State())

	// an empty read does not reset the timer, so the next request asks again
	mustHandle(t, g, get("/api/x"))
	assert.Equal(t, 2, reads)
}

func TestRefreshCanLeaveMaintenance(t *testing.T) {
	clock := newClock()
	shared := State{Mode: ModeDefault}
	g := New(Options{
		RefreshInterval: time.Second,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			s := shared
			return &s, nil
		},
	})
	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{}}`))
	require.NotNil(t, mustHandle(t, g, get("/api/x")))

	clock.Advance(time.Second)
	assert.Nil(t, mustHandle(t, g, get("/api/x")))
	assert.Equal(t, State{Mode: ModeDefault}, g.State())
}

func TestRefreshErrorPropagates(t *testing.T) {
	clock := newClock()
	boom := errors.New("store offline")
	var reads int
	g := New(Options{
		RefreshInterval: time.Second,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			reads++
			return nil, boom
		},
	})

	clock.Advance(time.Second)
	resp, err := g.Handle(context.Background(), get("/api/x"))
	assert.Nil(t, resp)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, reads, "no retry within a request")
	assert.Equal(t, State{Mode: ModeDefault}, g.State())
}

func TestWriteStateReceivesCombinedState(t *testing.T) {
	var written []State
	g := New(Options{WriteState: func(_ context.Context, s State) error {
		written = append(written, s)
		return nil
	}})

	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"down"}}`))
	mustHandle(t, g, management(http.MethodDelete, "", ""))
	mustHandle(t, g, management(http.MethodGet, "", ""))

	opts := &ResponseOptions{StatusCode: 503, Body: map[string]any{"msg": "down"}}
	assert.Equal(t, []State{
		{Mode: ModeMaintenance, ResponseOptions: opts},
		{Mode: ModeDefault, ResponseOptions: opts},
	}, written)
}

func TestWriteFailureKeepsLocalChange(t *testing.T) {
	boom := errors.New("write refused")
	g := New(Options{WriteState: func(context.Context, State) error { return boom }})

	resp, err := g.Handle(context.Background(), management(http.MethodPost, "", `{"statusCode":503,"body":{}}`))
	assert.Nil(t, resp)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, ModeMaintenance, g.State().Mode)
}

func TestStateSnapshotIsIsolated(t *testing.T) {
	g := New(Options{})
	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"down"}}`))

	snap := g.State()
	snap.ResponseOptions.Body["msg"] = "mutated"

	assert.Equal(t, "down", g.State().ResponseOptions.Body["msg"])
}

func TestWithStoreWiresBothFunctions(t *testing.T) {
	store := &recordingStore{}
	opts := Options{}.WithStore(store)
	require.NotNil(t, opts.ReadState)
	require.NotNil(t, opts.WriteState)

	g := New(opts)
	mustHandle(t, g, management(http.MethodDelete, "", ""))
	assert.Equal(t, 1, store.writes)
}

func TestGateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewGate(reg)
	g := New(Options{Metrics: m})

	mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{}}`))
	mustHandle(t, g, get("/api/a"))
	mustHandle(t, g, get("/api/b"))

	count, err := testutil.GatherAndCount(reg, "maintenance_blocked_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetGauge() != nil:
				values[mf.GetName()] = metric.GetGauge().GetValue()
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(1), values["maintenance_mode"])
	assert.Equal(t, float64(2), values["maintenance_blocked_requests_total"])
	assert.Equal(t, float64(1), values["maintenance_management_requests_total"])
}

func TestRefreshDoesNotOverwriteNewerLocalChange(t *testing.T) {
	clock := newClock()
	started := make(chan struct{})
	release := make(chan struct{})
	var reads atomic.Int32
	g := New(Options{
		RefreshInterval: time.Second,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			if reads.Add(1) == 1 {
				close(started)
				<-release
				return &State{Mode: ModeDefault}, nil
			}
			return nil, nil
		},
	})
	clock.Advance(time.Second)

	done := make(chan *Response)
	go func() {
		resp, err := g.Handle(context.Background(), get("/api/slow"))
		assert.NoError(t, err)
		done <- resp
	}()

	<-started
	resp := mustHandle(t, g, management(http.MethodPost, "", `{"statusCode":503,"body":{"msg":"down"}}`))
	require.NotNil(t, resp)
	require.Equal(t, http.StatusOK, resp.Status)

	close(release)
	slow := <-done
	require.NotNil(t, slow)
	assert.Equal(t, http.StatusServiceUnavailable, slow.Status)
	assert.Equal(t, ModeMaintenance, g.State().Mode)

	resp = mustHandle(t, g, get("/api/orders"))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestInvalidSharedStatusCodeServes503(t *testing.T) {
	clock := newClock()
	g := New(Options{
		RefreshInterval: time.Second,
		Now:             clock.Now,
		ReadState: func(context.Context) (*State, error) {
			return &State{
				Mode:            ModeMaintenance,
				ResponseOptions: &ResponseOptions{StatusCode: 0, Body: map[string]any{"msg": "down"}},
			}, nil
		},
	})
	clock.Advance(time.Second)

	resp := mustHandle(t, g, get("/api/orders"))
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
	assert.Equal(t, map[string]any{"msg": "down"}, resp.Body)
}

type recordingStore struct {
	writes int
}

func (s *recordingStore) ReadState(context.Context) (*State, error) { return nil, nil }

func (s *recordingStore) WriteState(context.Context, State) error {
	s.writes++
	return nil
}
