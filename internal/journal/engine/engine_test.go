package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hegerj/beakerlib/internal/journal/facts"
	"github.com/hegerj/beakerlib/internal/journal/xmldoc"
)

type stubHostFacts struct{}

func (stubHostFacts) Hostname() string { return "test-host" }
func (stubHostFacts) Arch() string     { return "x86_64" }
func (stubHostFacts) CPU() string      { return "1 x Test CPU" }
func (stubHostFacts) RAM() string      { return "1024 MB" }
func (stubHostFacts) HDD() string      { return "10.0 GB" }
func (stubHostFacts) Release() string  { return "Test Linux 1" }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	e := New(filepath.Join(dir, "j.xml"), filepath.Join(dir, "bl"), stubHostFacts{}, facts.NotInstalledPackageInfo{}, "")
	if err := e.Init(context.Background(), "/a/b/foo/bar", "foo"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return e
}

func TestInitCreatesJournalWithExpectedMetadata(t *testing.T) {
	e := newTestEngine(t)

	if v, _ := e.Doc.Find("package"); v == nil || v.Text != "foo" {
		t.Fatalf("package = %+v, want text foo", v)
	}
	if v, _ := e.Doc.Find("testname"); v == nil || v.Text != "/a/b/foo/bar" {
		t.Fatalf("testname = %+v, want /a/b/foo/bar", v)
	}
	log, _ := e.Doc.Find("log")
	if log == nil || len(log.Children) != 0 {
		t.Fatalf("log = %+v, want present and empty", log)
	}
	if _, err := os.Stat(e.JournalPath); err != nil {
		t.Fatalf("expected journal file to be written: %v", err)
	}
}

func TestInitIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	before := xmldoc.Serialize(e.Doc, true)

	e2 := New(e.JournalPath, e.BeakerlibDir, stubHostFacts{}, facts.NotInstalledPackageInfo{}, "")
	if err := e2.Init(context.Background(), "/different/test/name", "other"); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	after := xmldoc.Serialize(e2.Doc, true)
	if string(before) != string(after) {
		t.Fatalf("second Init changed the journal:\nbefore: %s\nafter:  %s", before, after)
	}
}

func TestAddPhaseFinPhasePassScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "check", "FAIL"); err != nil {
		t.Fatalf("AddPhase: %v", err)
	}
	if err := e.AddTest(ctx, "eq", "PASS", ""); err != nil {
		t.Fatalf("AddTest: %v", err)
	}
	result, score, ptype, name, err := e.FinPhase(ctx)
	if err != nil {
		t.Fatalf("FinPhase: %v", err)
	}
	if result != "PASS" || score != "0" || ptype != "FAIL" || name != "check" {
		t.Fatalf("FinPhase = (%q,%q,%q,%q), want (PASS,0,FAIL,check)", result, score, ptype, name)
	}
}

func TestAddPhaseFinPhaseFailScenario(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "check", "FAIL"); err != nil {
		t.Fatalf("AddPhase: %v", err)
	}
	if err := e.AddTest(ctx, "ne", "FAIL", ""); err != nil {
		t.Fatalf("AddTest: %v", err)
	}
	result, score, ptype, _, err := e.FinPhase(ctx)
	if err != nil {
		t.Fatalf("FinPhase: %v", err)
	}
	if result != "FAIL" || score != "1" || ptype != "FAIL" {
		t.Fatalf("FinPhase = (%q,%q,%q), want (FAIL,1,FAIL)", result, score, ptype)
	}
}

func TestAddTestWithNoOpenPhaseIsRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	err := e.AddTest(ctx, "orphan", "FAIL", "")
	if err == nil {
		t.Fatalf("expected an error for addTest with no open phase")
	}
	if _, ok := err.(Error); !ok {
		t.Fatalf("error %v does not implement engine.Error", err)
	}

	log, _ := e.Doc.Find("log")
	if len(log.FindAll("test")) != 0 {
		t.Fatalf("expected no test element appended to log, found %d", len(log.FindAll("test")))
	}
}

func TestAddMetricDuplicateNameRejected(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "bench", "FAIL"); err != nil {
		t.Fatalf("AddPhase: %v", err)
	}
	if err := e.AddMetric(ctx, "LINEAR", "t", 1.5, 0.1); err != nil {
		t.Fatalf("first AddMetric: %v", err)
	}
	if err := e.AddMetric(ctx, "LINEAR", "t", 2.0, 0.1); err == nil {
		t.Fatalf("expected second AddMetric with duplicate name to fail")
	}

	phase := lastUnfinishedPhase(e.logEl())
	if len(phase.FindAll("metric")) != 1 {
		t.Fatalf("expected exactly one metric, got %d", len(phase.FindAll("metric")))
	}
}

func TestSingleOpenPhaseResolvesLastUnfinished(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "p1", "FAIL"); err != nil {
		t.Fatalf("AddPhase p1: %v", err)
	}
	if lastUnfinishedPhase(e.logEl()) == e.logEl() {
		t.Fatalf("expected a phase to be open after AddPhase")
	}
	if _, _, _, _, err := e.FinPhase(ctx); err != nil {
		t.Fatalf("FinPhase: %v", err)
	}
	if lastUnfinishedPhase(e.logEl()) != e.logEl() {
		t.Fatalf("expected log itself once no phase is open")
	}
}

func TestAddPhaseWithoutFinPhaseRedirectsToSecondPhase(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "p1", "FAIL"); err != nil {
		t.Fatalf("AddPhase p1: %v", err)
	}
	if err := e.AddPhase(ctx, "p2", "FAIL"); err != nil {
		t.Fatalf("AddPhase p2: %v", err)
	}
	if err := e.AddMessage(ctx, "hello", "INFO"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}

	log, _ := e.Doc.Find("log")
	phases := log.FindAll("phase")
	if len(phases) != 2 {
		t.Fatalf("got %d phases, want 2", len(phases))
	}
	if len(phases[0].FindAll("message")) != 0 {
		t.Fatalf("expected no message on the first (superseded, still unfinished) phase")
	}
	if len(phases[1].FindAll("message")) != 1 {
		t.Fatalf("expected the message on the second (still-open) phase")
	}
}

func TestTestStateCapsAt255(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if err := e.AddPhase(ctx, "p", "FAIL"); err != nil {
		t.Fatalf("AddPhase: %v", err)
	}
	for i := 0; i < 300; i++ {
		if err := e.AddTest(ctx, "x", "FAIL", ""); err != nil {
			t.Fatalf("AddTest #%d: %v", i, err)
		}
	}
	if got := e.TestState(ctx); got != 255 {
		t.Fatalf("TestState = %d, want 255", got)
	}
	if got := e.PhaseState(ctx); got != 255 {
		t.Fatalf("PhaseState = %d, want 255", got)
	}
}

func TestDumpRejectsUnknownMode(t *testing.T) {
	e := newTestEngine(t)
	if _, err := e.Dump(context.Background(), "weird"); err == nil {
		t.Fatalf("expected an error for an unknown dump mode")
	}
}

func TestDumpRawAndPrettyRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	raw, err := e.Dump(context.Background(), "raw")
	if err != nil {
		t.Fatalf("Dump raw: %v", err)
	}
	parsed, err := xmldoc.Parse(raw)
	if err != nil {
		t.Fatalf("Parse dumped raw output: %v", err)
	}
	if out := xmldoc.Serialize(parsed, false); string(out) != string(raw) {
		t.Fatalf("raw dump did not round-trip:\ngot:  %s\nwant: %s", out, raw)
	}
}
