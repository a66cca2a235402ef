package maintenance

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maintenance-gate/internal/metrics"
	"github.com/maintenance-gate/internal/validation"
)

const (
	DefaultManagementPath  = "/maintenance"
	DefaultProtectedPrefix = "/api"
	DefaultRefreshInterval = 60 * time.Second

	// AccessKeyParam is the query parameter carrying the shared secret.
	AccessKeyParam = "accessKey"

	unauthorizedMessage = "You not authorized to perform this action"
)

// Options configures a Gate. They are fixed for the gate's lifetime.
type Options struct {
	ManagementPath  string
	ProtectedPrefix string
	// AccessKey, when set, must be supplied as the accessKey query parameter
	// on every management request.
	AccessKey       string
	RefreshInterval time.Duration

	ReadState  ReadStateFunc
	WriteState WriteStateFunc

	Logger  *zap.Logger
	Metrics *metrics.Gate
	Now     func() time.Time
}

// WithStore returns a copy of o reading and writing through store.
func (o Options) WithStore(store Store) Options {
	if store == nil {
		return o
	}
	o.ReadState = store.ReadState
	o.WriteState = store.WriteState
	return o
}

// Request is the part of an HTTP request the gate looks at.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   []byte
}

// Response is produced when the gate answers a request itself.
type Response struct {
	Status int
	Body   any
}

type messageResponse struct {
	Message string `json:"message"`
}

type stateResponse struct {
	Message         string           `json:"message"`
	ResponseOptions *ResponseOptions `json:"maintenanceResponseOptions,omitempty"`
}

// Gate decides per request whether to serve the maintenance response, handle
// a management command or let the request through. It keeps a local copy of
// the state, refreshed from ReadState once RefreshInterval has elapsed.
type Gate struct {
	opts      Options
	logger    *zap.Logger
	metrics   *metrics.Gate
	validator *validation.Validator

	mu              sync.Mutex
	state           State
	lastRefreshedAt time.Time
	// generation increases on every local state change; a refresh whose read
	// started under an older generation is discarded.
	generation uint64
}

func New(opts Options) *Gate {
	if opts.ManagementPath == "" {
		opts.ManagementPath = DefaultManagementPath
	}
	if opts.ProtectedPrefix == "" {
		opts.ProtectedPrefix = DefaultProtectedPrefix
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g := &Gate{
		opts:            opts,
		logger:          logger.With(zap.String("component", "maintenance_gate")),
		metrics:         opts.Metrics,
		validator:       validation.New(),
		state:           State{Mode: ModeDefault},
		lastRefreshedAt: opts.Now(),
	}
	g.metrics.SetMaintenance(false)
	return g
}

// State returns a copy of the locally cached state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone()
}

// Handle runs the gate for one request. A nil response with a nil error means
// the request should continue to normal handling. Errors come only from the
// external read and write functions and are returned unretried.
func (g *Gate) Handle(ctx context.Context, req Request) (*Response, error) {
	if err := g.refresh(ctx); err != nil {
		return nil, err
	}

	// Blocking takes precedence over management, so a path matching both is blocked.
	state := g.State()
	if state.Mode == ModeMaintenance && strings.Contains(req.Path, g.opts.ProtectedPrefix) {
		g.metrics.Blocked()
		return g.blockedResponse(state), nil
	}

	if g.IsManagementRequest(req.Path) {
		resp, err := g.manage(ctx, req)
		if resp != nil {
			g.metrics.ManagementRequest(req.Method, resp.Status)
		}
		return resp, err
	}

	return nil, nil
}

// IsManagementRequest reports whether path targets the management endpoint.
func (g *Gate) IsManagementRequest(path string) bool {
	return strings.HasSuffix(path, g.opts.ManagementPath)
}

func (g *Gate) refresh(ctx context.Context) error {
	if g.opts.ReadState == nil {
		return nil
	}

	now := g.opts.Now()
	g.mu.Lock()
	stale := now.Sub(g.lastRefreshedAt) >= g.opts.RefreshInterval
	generation := g.generation
	g.mu.Unlock()
	if !stale {
		return nil
	}

	fetched, err := g.opts.ReadState(ctx)
	if err != nil {
		g.metrics.Refresh("error")
		return fmt.Errorf("read maintenance state: %w", err)
	}
	if fetched == nil {
		g.metrics.Refresh("empty")
		return nil
	}
	if !fetched.Mode.Valid() {
		g.logger.Warn("shared state carries an unknown mode", zap.String("mode", string(fetched.Mode)))
	}

	next := fetched.Clone()
	g.mu.Lock()
	if g.generation != generation {
		g.mu.Unlock()
		g.metrics.Refresh("superseded")
		g.logger.Debug("dropping shared state read that raced a local change")
		return nil
	}
	previous := g.state.Mode
	g.state = next
	g.lastRefreshedAt = now
	g.generation++
	g.mu.Unlock()

	g.metrics.Refresh("updated")
	g.metrics.SetMaintenance(next.Mode == ModeMaintenance)
	if previous != next.Mode {
		g.logger.Info("maintenance mode changed by refresh",
			zap.String("from", string(previous)),
			zap.String("to", string(next.Mode)),
		)
	}
	return nil
}

func (g *Gate) blockedResponse(state State) *Response {
	opts := state.ResponseOptions
	if opts == nil {
		g.logger.Warn("maintenance response options are not configured")
		return &Response{Status: http.StatusServiceUnavailable}
	}
	resp := &Response{Status: opts.StatusCode}
	if opts.StatusCode < 100 || opts.StatusCode > 599 {
		g.logger.Warn("maintenance response carries an invalid status code", zap.Int("status", opts.StatusCode))
		resp.Status = http.StatusServiceUnavailable
	}
	if opts.Body != nil {
		resp.Body = opts.Body
	}
	return resp
}

func (g *Gate) manage(ctx context.Context, req Request) (*Response, error) {
	if !g.authorized(req.Query) {
		g.logger.Warn("unauthorized management request", zap.String("method", req.Method))
		return &Response{Status: http.StatusUnauthorized, Body: messageResponse{Message: unauthorizedMessage}}, nil
	}

	switch req.Method {
	case http.MethodGet:
		state := g.State()
		return &Response{Status: http.StatusOK, Body: messageResponse{Message: modeMessage(state.Mode)}}, nil
	case http.MethodPost:
		opts, err := g.decodeOptions(req.Body)
		if err != nil {
			return &Response{Status: http.StatusBadRequest, Body: messageResponse{Message: err.Error()}}, nil
		}
		return g.transition(ctx, req.Method, ModeMaintenance, opts)
	case http.MethodDelete:
		return g.transition(ctx, req.Method, ModeDefault, nil)
	default:
		return &Response{
			Status: http.StatusMethodNotAllowed,
			Body:   messageResponse{Message: fmt.Sprintf("%s is not allowed for this endpoint", req.Method)},
		}, nil
	}
}

func (g *Gate) authorized(query url.Values) bool {
	if g.opts.AccessKey == "" {
		return true
	}
	key := query.Get(AccessKeyParam)
	return subtle.ConstantTimeCompare([]byte(key), []byte(g.opts.AccessKey)) == 1
}

// decodeOptions returns nil options for an empty body so the previous options are kept.
func (g *Gate) decodeOptions(body []byte) (*ResponseOptions, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var opts *ResponseOptions
	if err := json.Unmarshal(body, &opts); err != nil {
		return nil, fmt.Errorf("invalid maintenance response options: %w", err)
	}
	if opts == nil {
		return nil, nil
	}
	if err := g.validator.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid maintenance response options: %w", err)
	}
	return opts, nil
}

// transition applies the mode change locally and then awaits the external write.
// A failed write leaves the local change in place.
func (g *Gate) transition(ctx context.Context, method string, mode Mode, opts *ResponseOptions) (*Response, error) {
	g.mu.Lock()
	previous := g.state.Mode
	g.state.Mode = mode
	if opts != nil {
		g.state.ResponseOptions = opts
	}
	g.generation++
	snapshot := g.state.Clone()
	g.mu.Unlock()

	g.metrics.SetMaintenance(mode == ModeMaintenance)
	g.logger.Info("maintenance mode set",
		zap.String("method", method),
		zap.String("from", string(previous)),
		zap.String("to", string(mode)),
	)

	if g.opts.WriteState != nil {
		err := g.opts.WriteState(ctx, snapshot)
		g.metrics.StateWrite(err)
		if err != nil {
			return nil, fmt.Errorf("write maintenance state: %w", err)
		}
	}

	return &Response{
		Status: http.StatusOK,
		Body: stateResponse{
			Message:         modeMessage(snapshot.Mode),
			ResponseOptions: snapshot.ResponseOptions,
		},
	}, nil
}

func modeMessage(mode Mode) string {
	return fmt.Sprintf("Server in %s mode now", mode)
}
