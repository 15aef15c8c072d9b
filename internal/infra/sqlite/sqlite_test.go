package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr"

	"github.com/tutu-network/hotplug/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testEvent(id string, at time.Time, action domain.Action, cpu int) domain.HotplugEvent {
	return domain.HotplugEvent{
		ID:       id,
		RunID:    "run-1",
		At:       at,
		Action:   action,
		CPU:      cpu,
		NrRun:    2,
		Online:   3,
		Duration: 150 * time.Microsecond,
	}
}

// ─── Database Lifecycle ─────────────────────────────────────────────────────

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Join(dir, "state.db")); os.IsNotExist(err) {
		t.Error("state.db should exist")
	}
}

func TestOpen_Ping(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error: %v", err)
	}
}

func TestOpen_Reopen(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := db.InsertEvent(ctx, testEvent("a", time.Now(), domain.BringUp, 1)); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	events, err := db.ListEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Errorf("events after reopen = %d, want 1", len(events))
	}
}

// ─── Events ─────────────────────────────────────────────────────────────────

func TestInsertEvent_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 123456789)

	ev := testEvent("ev-1", at, domain.TakeDown, 3)
	ev.Error = "device busy"
	if err := db.InsertEvent(ctx, ev); err != nil {
		t.Fatalf("InsertEvent() error: %v", err)
	}

	events, err := db.ListEvents(ctx, EventFilter{})
	if err != nil {
		t.Fatalf("ListEvents() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len = %d, want 1", len(events))
	}
	got := events[0]
	if !got.At.Equal(at) {
		t.Errorf("At = %v, want %v", got.At, at)
	}
	if got.Action != domain.TakeDown {
		t.Errorf("Action = %v, want take_down", got.Action)
	}
	if got.CPU != 3 || got.NrRun != 2 || got.Online != 3 {
		t.Errorf("got cpu=%d nrRun=%d online=%d, want 3/2/3", got.CPU, got.NrRun, got.Online)
	}
	if got.Error != "device busy" || got.Succeeded() {
		t.Errorf("Error = %q, want device busy", got.Error)
	}
	if got.Duration != 150*time.Microsecond {
		t.Errorf("Duration = %v, want 150µs", got.Duration)
	}
}

func TestInsertEvent_DuplicateID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ev := testEvent("dup", time.Now(), domain.BringUp, 1)
	if err := db.InsertEvent(ctx, ev); err != nil {
		t.Fatal(err)
	}
	if err := db.InsertEvent(ctx, ev); err == nil {
		t.Error("inserting the same id twice should fail")
	}
}

func TestListEvents_Filters(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)

	events := []domain.HotplugEvent{
		testEvent("1", base, domain.BringUp, 1),
		testEvent("2", base.Add(time.Second), domain.TakeDown, 1),
		testEvent("3", base.Add(2*time.Second), domain.BringUp, 2),
		testEvent("4", base.Add(3*time.Second), domain.TakeDown, 2),
	}
	events[3].RunID = "run-2"
	events[1].Error = "busy"
	for _, e := range events {
		if err := db.InsertEvent(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter EventFilter
		want   []string
	}{
		{"all newest first", EventFilter{}, []string{"4", "3", "2", "1"}},
		{"limit", EventFilter{Limit: 2}, []string{"4", "3"}},
		{"run", EventFilter{RunID: "run-2"}, []string{"4"}},
		{"action", EventFilter{Action: domain.BringUp}, []string{"3", "1"}},
		{"failed", EventFilter{Failed: true}, []string{"2"}},
		{"since", EventFilter{Since: base.Add(2 * time.Second)}, []string{"4", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.ListEvents(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListEvents() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, id := range tt.want {
				if got[i].ID != id {
					t.Errorf("[%d] = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestCountEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	for i, a := range []domain.Action{domain.BringUp, domain.BringUp, domain.TakeDown} {
		if err := db.InsertEvent(ctx, testEvent(string(rune('a'+i)), now, a, 1)); err != nil {
			t.Fatal(err)
		}
	}

	counts, err := db.CountEvents(ctx)
	if err != nil {
		t.Fatalf("CountEvents() error: %v", err)
	}
	if counts[domain.BringUp] != 2 || counts[domain.TakeDown] != 1 {
		t.Errorf("counts = %v, want bring_up=2 take_down=1", counts)
	}
}

func TestPruneEvents(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now()
	_ = db.InsertEvent(ctx, testEvent("old", now.Add(-48*time.Hour), domain.BringUp, 1))
	_ = db.InsertEvent(ctx, testEvent("new", now, domain.BringUp, 1))

	n, err := db.PruneEvents(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneEvents() error: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned = %d, want 1", n)
	}
	events, _ := db.ListEvents(ctx, EventFilter{})
	if len(events) != 1 || events[0].ID != "new" {
		t.Errorf("remaining = %v, want only new", events)
	}
}

// ─── Settings ───────────────────────────────────────────────────────────────

func TestSettings_KeyValue(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.GetSetting(ctx, "missing"); err != nil || ok {
		t.Errorf("GetSetting(missing) = ok=%v err=%v, want not found", ok, err)
	}
	if err := db.SetSetting(ctx, "k", "v1"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, "k", "v2"); err != nil {
		t.Fatal(err)
	}
	v, ok, err := db.GetSetting(ctx, "k")
	if err != nil || !ok || v != "v2" {
		t.Errorf("GetSetting(k) = %q %v %v, want v2", v, ok, err)
	}
}

func TestTunables_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, err := db.LoadTunables(ctx); err != nil || ok {
		t.Fatalf("LoadTunables on empty db = ok=%v err=%v", ok, err)
	}

	want := domain.Tunables{
		SampleRate:        30 * time.Millisecond,
		Window:            150 * time.Millisecond,
		HysteresisDivisor: 4,
		Bounds:            domain.Bounds{Min: 2, Max: 6},
		Thresholds:        []uint32{10, 18, 20, 34, 42, 50, 58},
	}
	if err := db.SaveTunables(ctx, want); err != nil {
		t.Fatalf("SaveTunables() error: %v", err)
	}
	got, ok, err := db.LoadTunables(ctx)
	if err != nil || !ok {
		t.Fatalf("LoadTunables() = ok=%v err=%v", ok, err)
	}
	if got.SampleRate != want.SampleRate || got.Window != want.Window ||
		got.HysteresisDivisor != want.HysteresisDivisor || got.Bounds != want.Bounds {
		t.Errorf("LoadTunables() = %+v, want %+v", got, want)
	}
	if len(got.Thresholds) != len(want.Thresholds) || got.Thresholds[6] != 58 {
		t.Errorf("Thresholds = %v, want %v", got.Thresholds, want.Thresholds)
	}
}

func TestEnabled_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if _, ok, _ := db.LoadEnabled(ctx); ok {
		t.Error("LoadEnabled on empty db should report not set")
	}
	for _, want := range []bool{true, false} {
		if err := db.SaveEnabled(ctx, want); err != nil {
			t.Fatal(err)
		}
		got, ok, err := db.LoadEnabled(ctx)
		if err != nil || !ok || got != want {
			t.Errorf("LoadEnabled() = %v %v %v, want %v", got, ok, err, want)
		}
	}
}

// ─── Journal ────────────────────────────────────────────────────────────────

func TestJournal_WritesAndFlushes(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, 16, logr.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	now := time.Now()
	for i := 0; i < 5; i++ {
		j.ObserveEvent(testEvent(string(rune('a'+i)), now.Add(time.Duration(i)), domain.TakeDown, i))
	}
	j.ObserveTick(domain.TickReport{})

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	events, err := db.ListEvents(context.Background(), EventFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Errorf("journaled %d events, want 5", len(events))
	}
	if j.Dropped() != 0 {
		t.Errorf("Dropped = %d, want 0", j.Dropped())
	}
}

func TestJournal_DropsWhenFull(t *testing.T) {
	db := newTestDB(t)
	j := NewJournal(db, 1, logr.Discard())

	j.ObserveEvent(testEvent("a", time.Now(), domain.BringUp, 1))
	j.ObserveEvent(testEvent("b", time.Now(), domain.BringUp, 2))

	if j.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", j.Dropped())
	}
}
