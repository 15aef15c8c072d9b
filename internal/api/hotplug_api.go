package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/tutu-network/hotplug/internal/domain"
	"github.com/tutu-network/hotplug/internal/infra/hotplug"
	"github.com/tutu-network/hotplug/internal/infra/sqlite"
)

// ─── Views ──────────────────────────────────────────────────────────────────

// TunablesView is the wire form of domain.Tunables.
type TunablesView struct {
	SampleRateMS      uint32        `json:"sample_rate_ms"`
	WindowMS          uint32        `json:"window_ms"`
	HysteresisDivisor uint32        `json:"hysteresis_divisor"`
	SmoothingFactor   uint64        `json:"smoothing_factor"`
	Bounds            domain.Bounds `json:"bounds"`
	Thresholds        []uint32      `json:"thresholds"`
}

func tunablesView(t domain.Tunables) TunablesView {
	thresholds := t.Thresholds
	if thresholds == nil {
		thresholds = []uint32{}
	}
	return TunablesView{
		SampleRateMS:      uint32(t.SampleRate / time.Millisecond),
		WindowMS:          uint32(t.Window / time.Millisecond),
		HysteresisDivisor: t.HysteresisDivisor,
		SmoothingFactor:   hotplug.SmoothingFactor(t.SampleRate, t.Window),
		Bounds:            t.Bounds,
		Thresholds:        thresholds,
	}
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	State       string       `json:"state"`
	RunID       string       `json:"run_id,omitempty"`
	LoadThreads float64      `json:"load_threads"`
	Load        uint64       `json:"load"`
	NrRun       int          `json:"nr_run"`
	Online      int          `json:"online"`
	OnlineCores []int        `json:"online_cores"`
	TotalCores  int          `json:"total_cores"`
	Tunables    TunablesView `json:"tunables"`
}

// EventsResponse is returned by GET /api/events.
type EventsResponse struct {
	Events []domain.HotplugEvent `json:"events"`
	Count  int                   `json:"count"`
}

// ─── Requests ───────────────────────────────────────────────────────────────

type setEnabledRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type boundsRequest struct {
	Min *uint32 `json:"min" validate:"required"`
	Max *uint32 `json:"max" validate:"required"`
}

type thresholdsRequest struct {
	Thresholds []uint32 `json:"thresholds" validate:"required"`
}

// tunablesRequest changes any subset of the tunables at once.
type tunablesRequest struct {
	SampleRateMS      *uint32        `json:"sample_rate_ms" validate:"omitempty,min=1"`
	WindowMS          *uint32        `json:"window_ms" validate:"omitempty,min=1"`
	HysteresisDivisor *uint32        `json:"hysteresis_divisor" validate:"omitempty,min=1"`
	Bounds            *boundsRequest `json:"bounds"`
	Thresholds        []uint32       `json:"thresholds"`
}

type eventsQuery struct {
	RunID  string `json:"run_id" validate:"omitempty,uuid"`
	Action string `json:"action" validate:"omitempty,oneof=bring_up take_down"`
	Limit  int    `json:"limit" validate:"min=0,max=1000"`
}

// ─── Status & Lifecycle ─────────────────────────────────────────────────────

func (s *Server) status() StatusResponse {
	st := s.ctrl.Status()
	online := st.OnlineCores
	if online == nil {
		online = []int{}
	}
	return StatusResponse{
		State:       st.State.String(),
		RunID:       st.RunID,
		LoadThreads: domain.LoadThreads(st.Load),
		Load:        st.Load,
		NrRun:       st.NrRun,
		Online:      len(online),
		OnlineCores: online,
		TotalCores:  st.TotalCores,
		Tunables:    tunablesView(st.Tunables),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	s.ctrl.SetEnabled(*req.Enabled)
	if s.store != nil {
		if err := s.store.SaveEnabled(r.Context(), *req.Enabled); err != nil {
			s.log.Error(err, "persist enabled state")
		}
	}
	s.changed()
	writeJSON(w, http.StatusOK, s.status())
}

// ─── Settings ───────────────────────────────────────────────────────────────

func (s *Server) handleGetBounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings().Bounds())
}

func (s *Server) handleSetBounds(w http.ResponseWriter, r *http.Request) {
	var req boundsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	applied := s.ctrl.Settings().SetBounds(*req.Min, *req.Max)
	s.persistTunables(r.Context())
	writeJSON(w, http.StatusOK, applied)
}

func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": tunablesView(s.ctrl.Settings().Tunables()).Thresholds,
		"scale":      domain.ThresholdScale,
	})
}

func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := s.ctrl.Settings().SetThresholds(req.Thresholds); err != nil {
		writeSettingsError(w, err)
		return
	}
	s.persistTunables(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"thresholds": s.ctrl.Settings().Thresholds(),
		"scale":      domain.ThresholdScale,
	})
}

func (s *Server) handleGetTunables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tunablesView(s.ctrl.Settings().Tunables()))
}

func (s *Server) handleSetTunables(w http.ResponseWriter, r *http.Request) {
	var req tunablesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	settings := s.ctrl.Settings()
	t := settings.Tunables()
	if req.SampleRateMS != nil {
		t.SampleRate = time.Duration(*req.SampleRateMS) * time.Millisecond
	}
	if req.WindowMS != nil {
		t.Window = time.Duration(*req.WindowMS) * time.Millisecond
	}
	if req.HysteresisDivisor != nil {
		t.HysteresisDivisor = *req.HysteresisDivisor
	}
	if req.Bounds != nil {
		t.Bounds = domain.Bounds{Min: *req.Bounds.Min, Max: *req.Bounds.Max}
	}
	if req.Thresholds != nil {
		t.Thresholds = req.Thresholds
	}

	if err := settings.Apply(t); err != nil {
		writeSettingsError(w, err)
		return
	}
	s.persistTunables(r.Context())
	writeJSON(w, http.StatusOK, tunablesView(settings.Tunables()))
}

// persistTunables saves the live settings. The change is already in effect,
// so a store failure is logged rather than returned.
func (s *Server) persistTunables(ctx context.Context) {
	if s.store != nil {
		if err := s.store.SaveTunables(ctx, s.ctrl.Settings().Tunables()); err != nil {
			s.log.Error(err, "persist tunables")
		}
	}
	s.changed()
}

func (s *Server) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

func writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrThresholdCount),
		errors.Is(err, domain.ErrThresholdOrder),
		errors.Is(err, domain.ErrInvalidSampleRate),
		errors.Is(err, domain.ErrInvalidWindow),
		errors.Is(err, domain.ErrInvalidHysteresis):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// ─── Journal ────────────────────────────────────────────────────────────────

// handleListEvents serves the transition journal. Query parameters: run_id,
// action (bring_up|take_down), failed (bool), since (RFC 3339 or a duration
// such as 15m), limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}

	q := r.URL.Query()
	eq := eventsQuery{RunID: q.Get("run_id"), Action: q.Get("action")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeValidationError(w, map[string]string{"limit": "must be an integer"})
			return
		}
		eq.Limit = n
	}
	if errs := validateStruct(eq); errs != nil {
		writeValidationError(w, errs)
		return
	}

	f := sqlite.EventFilter{RunID: eq.RunID, Limit: eq.Limit}
	if eq.Action != "" {
		if err := f.Action.UnmarshalText([]byte(eq.Action)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if v := q.Get("failed"); v != "" {
		failed, err := strconv.ParseBool(v)
		if err != nil {
			writeValidationError(w, map[string]string{"failed": "must be a boolean"})
			return
		}
		f.Failed = failed
	}
	if v := q.Get("since"); v != "" {
		since, err := parseSince(v, time.Now())
		if err != nil {
			writeValidationError(w, map[string]string{"since": "must be RFC 3339 or a duration"})
			return
		}
		f.Since = since
	}

	events, err := s.store.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []domain.HotplugEvent{}
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}

func (s *Server) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	counts, err := s.store.CountEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make(map[string]int, len(counts))
	for a, n := range counts {
		out[a.String()] = n
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": out})
}

// parseSince accepts an absolute RFC 3339 time or a duration before now.
func parseSince(v string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}
