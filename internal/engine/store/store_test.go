package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"apistatus/internal/engine/backend"
	"apistatus/internal/engine/clock"
	"apistatus/internal/engine/outcome"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(mem *backend.Memory) *Store {
	return New(mem, clock.NewFrozen(testNow), 600, 16, 1)
}

// seedEvent writes one event pair directly at an absolute time, bypassing
// the async queue so tests control offsets precisely.
func seedEvent(t *testing.T, mem *backend.Memory, commandKey string, at time.Time, execTimeMS int64, status outcome.Status) {
	t.Helper()
	offset := clock.OffsetMicrosAt(at)
	_, err := mem.Do(context.Background(), []backend.Cmd{
		backend.ZAdd(keyLastExec, offset, commandKey),
		backend.ZAdd(keyExecTimePrefix+commandKey, offset, fmt.Sprintf("%d_%d", offset, execTimeMS)),
		backend.ZAdd(keyExecStatusPrefix+commandKey, offset, fmt.Sprintf("%d_%d", offset, status)),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestRecordEventWritesFullBatch(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	s.Start()
	s.RecordEvent("api_orders_items", 42, outcome.BizFail)
	s.Stop() // drains the queue

	offset := clock.OffsetMicrosAt(testNow)
	wantTime := fmt.Sprintf("%d_42", offset)
	wantStatus := fmt.Sprintf("%d_2", offset)

	if got := mem.Members(keyExecTimePrefix + "api_orders_items"); len(got) != 1 || got[0] != wantTime {
		t.Fatalf("exec_time members = %v, want [%s]", got, wantTime)
	}
	if got := mem.Members(keyExecStatusPrefix + "api_orders_items"); len(got) != 1 || got[0] != wantStatus {
		t.Fatalf("exec_status members = %v, want [%s]", got, wantStatus)
	}
	if got := mem.Members(keyLastExec); len(got) != 1 || got[0] != "api_orders_items" {
		t.Fatalf("registry members = %v", got)
	}

	sec := fmt.Sprintf("%d", testNow.Unix())
	if got := mem.Value(keyGlobalExecPrefix + sec); got != "1" {
		t.Fatalf("global exec counter = %q, want 1", got)
	}
	if got := mem.Value(keyGlobalBizPrefix + sec); got != "1" {
		t.Fatalf("global bizfail counter = %q, want 1", got)
	}
	if got := mem.Value(keyGlobalSysPrefix + sec); got != "" {
		t.Fatalf("global sysfail counter should be absent, got %q", got)
	}
	if ttl := mem.TTL(keyGlobalExecPrefix + sec); ttl != 600 {
		t.Fatalf("counter TTL = %d, want 600", ttl)
	}
}

func TestRecordEventSuccessSkipsFailCounters(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	s.Start()
	s.RecordEvent("cmd", 10, outcome.Success)
	s.Stop()

	sec := fmt.Sprintf("%d", testNow.Unix())
	if got := mem.Value(keyGlobalBizPrefix + sec); got != "" {
		t.Fatalf("bizfail counter should be absent, got %q", got)
	}
	if got := mem.Value(keyGlobalSysPrefix + sec); got != "" {
		t.Fatalf("sysfail counter should be absent, got %q", got)
	}
}

func TestCommandWindowRoundTrip(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)

	// Ten events in the last minute, 600ms each, one biz fail, one sys fail.
	for i := 0; i < 8; i++ {
		seedEvent(t, mem, "cmd", testNow.Add(-time.Duration(i+1)*time.Second), 600, outcome.Success)
	}
	seedEvent(t, mem, "cmd", testNow.Add(-10*time.Second), 600, outcome.BizFail)
	seedEvent(t, mem, "cmd", testNow.Add(-11*time.Second), 600, outcome.SysFail)
	// One event outside the window must not count.
	seedEvent(t, mem, "cmd", testNow.Add(-2*time.Minute), 9999, outcome.SysFail)

	w := s.CommandWindow(context.Background(), "cmd", 60)
	if w.TotalExecCount != 10 {
		t.Fatalf("total = %d, want 10", w.TotalExecCount)
	}
	if w.AvgExecTimeMS != 600 {
		t.Fatalf("avg = %d, want 600", w.AvgExecTimeMS)
	}
	if w.BizFailCount != 1 || w.SysFailCount != 1 {
		t.Fatalf("fail counts = %d/%d, want 1/1", w.BizFailCount, w.SysFailCount)
	}
	if w.BizFailCount+w.SysFailCount > w.TotalExecCount {
		t.Fatalf("invariant violated: %d+%d > %d", w.BizFailCount, w.SysFailCount, w.TotalExecCount)
	}
}

func TestCommandWindowSingleEvent(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	seedEvent(t, mem, "cmd", testNow.Add(-time.Second), 123, outcome.Success)
	w := s.CommandWindow(context.Background(), "cmd", 60)
	if w.AvgExecTimeMS != 123 {
		t.Fatalf("avg = %d, want the single event's time 123", w.AvgExecTimeMS)
	}
	if w.TotalExecCount != 1 {
		t.Fatalf("total = %d, want 1", w.TotalExecCount)
	}
}

func TestCommandWindowEmptyDefaults(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	w := s.CommandWindow(context.Background(), "nothing", 60)
	if w.TotalExecCount != 1 {
		t.Fatalf("empty window total = %d, want 1 (division safety)", w.TotalExecCount)
	}
	if w.AvgExecTimeMS != 0 || w.BizFailCount != 0 || w.SysFailCount != 0 {
		t.Fatalf("empty window not zeroed: %+v", w)
	}
}

func TestCommandWindowSkipsMalformedMembers(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	offset := clock.OffsetMicrosAt(testNow.Add(-time.Second))
	_, err := mem.Do(context.Background(), []backend.Cmd{
		backend.ZAdd(keyExecStatusPrefix+"cmd", offset, fmt.Sprintf("%d_2", offset)),
		backend.ZAdd(keyExecStatusPrefix+"cmd", offset+1, "garbage_x"),
		// no separator: the whole member is the value
		backend.ZAdd(keyExecStatusPrefix+"cmd", offset+2, "3"),
	})
	if err != nil {
		t.Fatal(err)
	}
	w := s.CommandWindow(context.Background(), "cmd", 60)
	if w.TotalExecCount != 2 {
		t.Fatalf("total = %d, want 2 (malformed member skipped)", w.TotalExecCount)
	}
	if w.BizFailCount != 1 || w.SysFailCount != 1 {
		t.Fatalf("counts = %d/%d, want 1/1", w.BizFailCount, w.SysFailCount)
	}
}

func TestCommandWindowFailsOpen(t *testing.T) {
	mem := backend.NewMemory()
	mem.FailWith = fmt.Errorf("backend down")
	s := newTestStore(mem)
	w := s.CommandWindow(context.Background(), "cmd", 60)
	if w.TotalExecCount != 1 || w.BizFailCount != 0 || w.SysFailCount != 0 || w.AvgExecTimeMS != 0 {
		t.Fatalf("expected fail-open default window, got %+v", w)
	}
}

func TestGlobalWindowSums(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	now := testNow.Unix()
	var cmds []backend.Cmd
	// Counters in three different seconds of the window, one outside.
	for _, sec := range []int64{now, now - 5, now - 30} {
		cmds = append(cmds, backend.Incr(keyGlobalExecPrefix+fmt.Sprintf("%d", sec)))
	}
	cmds = append(cmds,
		backend.Incr(keyGlobalBizPrefix+fmt.Sprintf("%d", now-5)),
		backend.Incr(keyGlobalSysPrefix+fmt.Sprintf("%d", now-30)),
		backend.Incr(keyGlobalExecPrefix+fmt.Sprintf("%d", now-31))) // outside a 30s window
	if _, err := mem.Do(context.Background(), cmds); err != nil {
		t.Fatal(err)
	}

	w := s.GlobalWindow(context.Background(), now, 30)
	if w.GlobalExecCount != 3 {
		t.Fatalf("global exec = %d, want 3", w.GlobalExecCount)
	}
	if w.GlobalBizFailCount != 1 || w.GlobalSysFailCount != 1 {
		t.Fatalf("global fails = %d/%d, want 1/1", w.GlobalBizFailCount, w.GlobalSysFailCount)
	}
}

func TestGlobalWindowEmptySubstitutesOne(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	w := s.GlobalWindow(context.Background(), testNow.Unix(), 10)
	if w.GlobalExecCount != 1 {
		t.Fatalf("empty global exec = %d, want 1", w.GlobalExecCount)
	}
}

func TestHitWindowRoundTrip(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	s.Start()
	s.RecordHit("dev1", "api_login")
	s.RecordHit("dev1", "api_login")
	s.RecordHit("dev1", "api_orders")
	s.Stop()

	// The frozen clock makes all three hits share one offset, so the hit
	// members collapse; the registry still learns every set suffix.
	if got := mem.Members(keyDeviceRegistry); len(got) != 3 {
		t.Fatalf("device registry = %v, want 3 set suffixes", got)
	}

	// Seed distinct offsets for the counting assertion.
	mem2 := backend.NewMemory()
	s2 := newTestStore(mem2)
	base := clock.OffsetMicrosAt(testNow.Add(-time.Second))
	var cmds []backend.Cmd
	for i := int64(0); i < 2; i++ {
		cmds = append(cmds,
			backend.ZAdd(keyDevicePrefix+deviceCommandSet("dev1", "api_login"), base+i, fmt.Sprintf("%d_1", base+i)),
			backend.ZAdd(keyDevicePrefix+deviceAllSet("dev1"), base+i, fmt.Sprintf("%d_1", base+i)))
	}
	cmds = append(cmds,
		backend.ZAdd(keyDevicePrefix+deviceCommandSet("dev1", "api_orders"), base+2, fmt.Sprintf("%d_1", base+2)),
		backend.ZAdd(keyDevicePrefix+deviceAllSet("dev1"), base+2, fmt.Sprintf("%d_1", base+2)))
	if _, err := mem2.Do(context.Background(), cmds); err != nil {
		t.Fatal(err)
	}

	w := s2.HitWindow(context.Background(), "dev1", "api_login", 60)
	if w.SingleCommandHits != 2 {
		t.Fatalf("single hits = %d, want 2", w.SingleCommandHits)
	}
	if w.TotalCommandHits != 3 {
		t.Fatalf("total hits = %d, want 3", w.TotalCommandHits)
	}
}

func TestEnqueueDropsOldestWhenSaturated(t *testing.T) {
	mem := backend.NewMemory()
	s := New(mem, clock.NewFrozen(testNow), 600, 1, 1)
	// Workers not started: the queue fills up.
	s.RecordEvent("first", 1, outcome.Success)
	s.RecordEvent("second", 2, outcome.Success)

	got := <-s.queue
	if got.commandKey != "second" {
		t.Fatalf("queue kept %q, want the newest event", got.commandKey)
	}
	select {
	case extra := <-s.queue:
		t.Fatalf("queue should be empty, got %q", extra.commandKey)
	default:
	}
}

func TestSweepBoundsRetention(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	seedEvent(t, mem, "cmd", testNow.Add(-700*time.Second), 100, outcome.Success)
	seedEvent(t, mem, "cmd", testNow.Add(-100*time.Second), 200, outcome.Success)

	report := s.Sweep(context.Background(), 600)
	if report.Scheduled != 1 || report.Succeeded != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}

	w := s.CommandWindow(context.Background(), "cmd", 700)
	if w.TotalExecCount != 1 {
		t.Fatalf("post-sweep 700s window total = %d, want 1", w.TotalExecCount)
	}
	if w.AvgExecTimeMS != 200 {
		t.Fatalf("post-sweep avg = %d, want 200 (only the newer event)", w.AvgExecTimeMS)
	}
	if len(report.String()) == 0 {
		t.Fatal("report text should not be empty")
	}
}

func TestSweepTrimsRegistryAndDeviceSets(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)

	// 30 stale commands to exercise the batch split at 25.
	for i := 0; i < 30; i++ {
		seedEvent(t, mem, fmt.Sprintf("cmd%02d", i), testNow.Add(-20*time.Minute), 10, outcome.Success)
	}
	// A stale device stream.
	staleOffset := clock.OffsetMicrosAt(testNow.Add(-20 * time.Minute))
	if _, err := mem.Do(context.Background(), []backend.Cmd{
		backend.ZAdd(keyDeviceRegistry, staleOffset, deviceAllSet("dev1")),
		backend.ZAdd(keyDevicePrefix+deviceAllSet("dev1"), staleOffset, fmt.Sprintf("%d_1", staleOffset)),
	}); err != nil {
		t.Fatal(err)
	}

	report := s.Sweep(context.Background(), 600)
	if report.Scheduled != 31 {
		t.Fatalf("scheduled = %d, want 31", report.Scheduled)
	}
	if report.Failed != 0 {
		t.Fatalf("failed = %d, want 0", report.Failed)
	}
	if got := mem.Members(keyLastExec); len(got) != 0 {
		t.Fatalf("stale registry entries remain: %v", got)
	}
	if got := mem.Members(keyDeviceRegistry); len(got) != 0 {
		t.Fatalf("stale device registry entries remain: %v", got)
	}
	if got := mem.Members(keyDevicePrefix + deviceAllSet("dev1")); len(got) != 0 {
		t.Fatalf("stale device hits remain: %v", got)
	}
	w := s.CommandWindow(context.Background(), "cmd00", 3600)
	if w.TotalExecCount != 1 || w.BizFailCount != 0 {
		t.Fatalf("swept command should read empty: %+v", w)
	}
}

func TestDurationZeroWindowDoesNotError(t *testing.T) {
	mem := backend.NewMemory()
	s := newTestStore(mem)
	seedEvent(t, mem, "cmd", testNow, 50, outcome.Success)
	w := s.CommandWindow(context.Background(), "cmd", 0)
	if w.TotalExecCount != 1 {
		t.Fatalf("duration 0 window total = %d", w.TotalExecCount)
	}
}
