package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/health"
	"github.com/tutu-network/hotplug/internal/infra/cpu"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
	"github.com/tutu-network/hotplug/internal/infra/sqlite"
)

type testEnv struct {
	srv     *Server
	ctrl    *hotplug.Controller
	db      *sqlite.DB
	changes int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sim, err := cpu.NewSimulated(cpu.SimulatedOptions{Cores: 4, Threads: 1})
	if err != nil {
		t.Fatalf("NewSimulated() error: %v", err)
	}
	ctrl, err := hotplug.New(sim.Backend(), hotplug.DefaultTunables(4), hotplug.Options{}, logr.Discard())
	if err != nil {
		t.Fatalf("hotplug.New() error: %v", err)
	}
	t.Cleanup(ctrl.Stop)

	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{ctrl: ctrl, db: db}
	env.srv = NewServer(ctrl, logr.Discard())
	env.srv.SetStore(db)
	env.srv.OnChange(func() { env.changes++ })
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
	return v
}

type errorBody struct {
	Error struct {
		Message string            `json:"message"`
		Type    string            `json:"type"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// ─── Health & Version ───────────────────────────────────────────────────────

type fakeHealth struct {
	healthy bool
}

func (f fakeHealth) IsHealthy() bool { return f.healthy }
func (f fakeHealth) Statuses() []health.Status {
	return []health.Status{{Name: "sqlite", Healthy: f.healthy}}
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	env.srv.SetHealth(fakeHealth{healthy: false})
	w = env.do(t, "GET", "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	body := decode[map[string]any](t, w)
	if body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}

func TestAPI_Version(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetVersion("1.2.3")

	w := env.do(t, "GET", "/api/version", "")
	body := decode[map[string]string](t, w)
	if body["version"] != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", body["version"])
	}
}

func TestAPI_Metrics(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, "GET", "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled: status = %d, want 404", w.Code)
	}

	env.srv.EnableMetrics()
	if w := env.do(t, "GET", "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics enabled: status = %d, want 200", w.Code)
	}
}

// ─── Status & Enabled ───────────────────────────────────────────────────────

func TestAPI_Status(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/api/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	st := decode[StatusResponse](t, w)
	if st.State != "disabled" {
		t.Errorf("state = %q, want disabled", st.State)
	}
	if st.TotalCores != 4 || st.Online != 4 {
		t.Errorf("cores = %d/%d, want 4/4", st.Online, st.TotalCores)
	}
	if st.Tunables.SampleRateMS != 20 || st.Tunables.WindowMS != 100 {
		t.Errorf("rate/window = %d/%d, want 20/100", st.Tunables.SampleRateMS, st.Tunables.WindowMS)
	}
	if st.Tunables.SmoothingFactor != 1677 {
		t.Errorf("smoothing_factor = %d, want 1677", st.Tunables.SmoothingFactor)
	}
	if len(st.Tunables.Thresholds) != 3 {
		t.Errorf("thresholds = %v, want 3 levels", st.Tunables.Thresholds)
	}
}

func TestAPI_SetEnabled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.do(t, "PUT", "/api/enabled", `{"enabled": true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := decode[StatusResponse](t, w)
	if st.State != "running" || st.RunID == "" {
		t.Errorf("state = %q runID = %q, want running with a run id", st.State, st.RunID)
	}
	if enabled, ok, _ := env.db.LoadEnabled(ctx); !ok || !enabled {
		t.Errorf("persisted enabled = %v (ok %v), want true", enabled, ok)
	}

	w = env.do(t, "PUT", "/api/enabled", `{"enabled": false}`)
	if st := decode[StatusResponse](t, w); st.State != "disabled" {
		t.Errorf("state = %q, want disabled", st.State)
	}
	if env.ctrl.IsEnabled() {
		t.Error("controller should be stopped")
	}
	if env.changes != 2 {
		t.Errorf("changes = %d, want 2", env.changes)
	}
}

func TestAPI_SetEnabled_Validation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/api/enabled", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := decode[errorBody](t, w)
	if body.Error.Fields["enabled"] != "is required" {
		t.Errorf("fields = %v, want enabled required", body.Error.Fields)
	}

	w = env.do(t, "PUT", "/api/enabled", `{"enabled": true, "force": true}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field: status = %d, want 400", w.Code)
	}
	if env.ctrl.IsEnabled() {
		t.Error("rejected request must not start the controller")
	}
}

// ─── Bounds & Thresholds ────────────────────────────────────────────────────

func TestAPI_Bounds(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		body string
		want domain.Bounds
	}{
		{`{"min": 2, "max": 3}`, domain.Bounds{Min: 2, Max: 3}},
		{`{"min": 3, "max": 2}`, domain.Bounds{Min: 2, Max: 2}},
		{`{"min": 0, "max": 9}`, domain.Bounds{Min: 1, Max: 4}},
	}
	for _, tt := range tests {
		w := env.do(t, "PUT", "/api/bounds", tt.body)
		if w.Code != http.StatusOK {
			t.Fatalf("PUT %s: status = %d", tt.body, w.Code)
		}
		if got := decode[domain.Bounds](t, w); got != tt.want {
			t.Errorf("PUT %s = %+v, want %+v", tt.body, got, tt.want)
		}
		if got := decode[domain.Bounds](t, env.do(t, "GET", "/api/bounds", "")); got != tt.want {
			t.Errorf("GET after %s = %+v, want %+v", tt.body, got, tt.want)
		}
	}

	saved, ok, err := env.db.LoadTunables(context.Background())
	if err != nil || !ok {
		t.Fatalf("LoadTunables() ok=%v err=%v", ok, err)
	}
	if saved.Bounds != (domain.Bounds{Min: 1, Max: 4}) {
		t.Errorf("persisted bounds = %+v", saved.Bounds)
	}

	if w := env.do(t, "PUT", "/api/bounds", `{"min": 2}`); w.Code != http.StatusBadRequest {
		t.Errorf("missing max: status = %d, want 400", w.Code)
	}
}

func TestAPI_Thresholds(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/api/thresholds", `{"thresholds": [12, 16, 24]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := env.ctrl.Settings().Thresholds()
	if len(got) != 3 || got[0] != 12 || got[2] != 24 {
		t.Errorf("thresholds = %v, want [12 16 24]", got)
	}

	for _, body := range []string{
		`{"thresholds": [12, 16]}`,
		`{"thresholds": [12, 10, 24]}`,
		`{}`,
	} {
		if w := env.do(t, "PUT", "/api/thresholds", body); w.Code != http.StatusBadRequest {
			t.Errorf("PUT %s: status = %d, want 400", body, w.Code)
		}
	}
	if got := env.ctrl.Settings().Thresholds(); got[0] != 12 {
		t.Errorf("rejected update changed thresholds to %v", got)
	}

	res := decode[map[string]any](t, env.do(t, "GET", "/api/thresholds", ""))
	if res["scale"] != float64(domain.ThresholdScale) {
		t.Errorf("scale = %v, want %d", res["scale"], domain.ThresholdScale)
	}
}

// ─── Tunables ───────────────────────────────────────────────────────────────

func TestAPI_Tunables_Partial(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/api/tunables", `{"sample_rate_ms": 50, "hysteresis_divisor": 4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	view := decode[TunablesView](t, w)
	if view.SampleRateMS != 50 || view.HysteresisDivisor != 4 {
		t.Errorf("view = %+v", view)
	}
	if view.WindowMS != 100 {
		t.Errorf("window = %d, want unchanged 100", view.WindowMS)
	}
	if got := env.ctrl.Settings().Tunables().SampleRate; got != 50*time.Millisecond {
		t.Errorf("sample rate = %v, want 50ms", got)
	}
}

func TestAPI_Tunables_AllOrNothing(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/api/tunables", `{"sample_rate_ms": 50, "thresholds": [30, 20, 10]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if got := env.ctrl.Settings().Tunables().SampleRate; got != hotplug.DefaultSampleRate {
		t.Errorf("sample rate = %v, rejected update must not apply", got)
	}

	w = env.do(t, "PUT", "/api/tunables", `{"window_ms": 0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("window 0: status = %d, want 400", w.Code)
	}
	if body := decode[errorBody](t, w); body.Error.Fields["window_ms"] == "" {
		t.Errorf("fields = %v, want window_ms", body.Error.Fields)
	}

	w = env.do(t, "PUT", "/api/tunables", `{"bounds": {"min": 2}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("partial bounds: status = %d, want 400", w.Code)
	}
}

// ─── Journal ────────────────────────────────────────────────────────────────

func seedEvents(t *testing.T, db *sqlite.DB, runID string) {
	t.Helper()
	now := time.Now()
	events := []domain.HotplugEvent{
		{Action: domain.TakeDown, CPU: 3, At: now.Add(-2 * time.Hour)},
		{Action: domain.TakeDown, CPU: 2, At: now.Add(-time.Minute)},
		{Action: domain.BringUp, CPU: 2, At: now, Error: "device busy"},
	}
	for _, e := range events {
		e.ID = uuid.NewString()
		e.RunID = runID
		if err := db.InsertEvent(context.Background(), e); err != nil {
			t.Fatalf("InsertEvent() error: %v", err)
		}
	}
}

func TestAPI_Events(t *testing.T) {
	env := newTestEnv(t)
	runID := uuid.NewString()
	seedEvents(t, env.db, runID)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?action=take_down", 2},
		{"?failed=true", 1},
		{"?since=1h", 2},
		{"?limit=1", 1},
		{"?run_id=" + runID, 3},
		{"?run_id=" + uuid.NewString(), 0},
	}
	for _, tt := range tests {
		w := env.do(t, "GET", "/api/events"+tt.query, "")
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status = %d, body %s", tt.query, w.Code, w.Body.String())
		}
		res := decode[EventsResponse](t, w)
		if res.Count != tt.want || len(res.Events) != tt.want {
			t.Errorf("GET %s: count = %d, want %d", tt.query, res.Count, tt.want)
		}
	}

	newest := decode[EventsResponse](t, env.do(t, "GET", "/api/events?limit=1", "")).Events[0]
	if newest.Action != domain.BringUp || newest.Succeeded() {
		t.Errorf("newest = %+v, want the failed bring_up", newest)
	}
}

func TestAPI_Events_BadQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{
		"?action=noop",
		"?run_id=not-a-uuid",
		"?limit=abc",
		"?limit=5000",
		"?failed=maybe",
		"?since=yesterday",
	} {
		if w := env.do(t, "GET", "/api/events"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("GET %s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestAPI_EventSummary(t *testing.T) {
	env := newTestEnv(t)
	seedEvents(t, env.db, uuid.NewString())

	res := decode[map[string]map[string]int](t, env.do(t, "GET", "/api/events/summary", ""))
	if res["transitions"]["take_down"] != 2 || res["transitions"]["bring_up"] != 1 {
		t.Errorf("transitions = %v", res["transitions"])
	}
}

func TestAPI_Events_NoStore(t *testing.T) {
	env := newTestEnv(t)
	env.srv.SetStore(nil)

	if w := env.do(t, "GET", "/api/events", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	// settings still work without persistence
	if w := env.do(t, "PUT", "/api/bounds", `{"min": 1, "max": 2}`); w.Code != http.StatusOK {
		t.Errorf("bounds without store: status = %d, want 200", w.Code)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("30m", now)
	if err != nil || !got.Equal(now.Add(-30*time.Minute)) {
		t.Errorf("parseSince(30m) = %v, %v", got, err)
	}
	got, err = parseSince("2024-05-01T10:00:00Z", now)
	if err != nil || got.Hour() != 10 {
		t.Errorf("parseSince(rfc3339) = %v, %v", got, err)
	}
	if _, err := parseSince("soon", now); err == nil {
		t.Error("parseSince(soon) should fail")
	}
}
