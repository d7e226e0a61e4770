// Package engine holds the in-memory journal document and every operation
// that mutates or queries it.
package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hegerj/beakerlib/internal/journal/facts"
	"github.com/hegerj/beakerlib/internal/journal/persist"
	"github.com/hegerj/beakerlib/internal/journal/xmldoc"
)

const timeLayout = "2006-01-02 15:04:05 MST"

// Engine owns the single in-memory journal document for the daemon's
// lifetime. The signal handler reads Doc and JournalPath only (never
// mutates), so the mutex here exists to protect against a command being
// mid-mutation when a signal arrives — it is held for the duration of
// every public method.
type Engine struct {
	Doc          *xmldoc.Node
	JournalPath  string
	BeakerlibDir string
	HostFacts    facts.HostFacts
	PackageInfo  facts.PackageInfo
	PluginGlob   string
	RunID        string

	mu  sync.Mutex
	now func() time.Time
}

// New constructs an Engine bound to journalPath. beakerlibDir is the
// BEAKERLIB env value used for plugin scanning; pluginGlob defaults to
// "*.sh" when empty.
func New(journalPath, beakerlibDir string, hf facts.HostFacts, pi facts.PackageInfo, pluginGlob string) *Engine {
	if pluginGlob == "" {
		pluginGlob = "*.sh"
	}
	return &Engine{
		JournalPath:  journalPath,
		BeakerlibDir: beakerlibDir,
		HostFacts:    hf,
		PackageInfo:  pi,
		PluginGlob:   pluginGlob,
		RunID:        ulid.Make().String(),
		now:          time.Now,
	}
}

// Lock/Unlock let the daemon loop's signal handler snapshot Doc safely
// without reaching into engine internals.
func (e *Engine) Lock()   { e.mu.Lock() }
func (e *Engine) Unlock() { e.mu.Unlock() }

func (e *Engine) timestamp() string {
	return e.now().Format(timeLayout)
}

// Init loads the journal from disk if it already parses (idempotent init,
// status unchanged), otherwise builds a fresh document from the given test
// name and package and persists it.
func (e *Engine) Init(ctx context.Context, test, pkg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ok, err := persist.VerifyChecksum(e.JournalPath); err == nil && !ok {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: warning: %s checksum mismatch, proceeding anyway\n", e.JournalPath)
	}

	doc, loadErr, found := persist.Load(e.JournalPath)
	if found && loadErr == nil {
		e.Doc = doc
		return nil
	}
	if found && loadErr != nil {
		// A journal file exists but failed to parse. Per spec this is not the
		// idempotent-init path; fall through and rebuild it fresh, same as the
		// original daemon's openJournal() does on a parse failure.
		_ = loadErr
	}

	doc, err := e.buildInitialDocument(test, pkg)
	if err != nil {
		return err
	}
	e.Doc = doc
	return e.save()
}

func (e *Engine) buildInitialDocument(test, pkg string) (*xmldoc.Node, error) {
	root := xmldoc.NewElement("BEAKER_TEST")

	if testid := os.Getenv("TESTID"); testid != "" {
		root.AppendChild(xmldoc.NewElement("test_id")).SetText(testid)
	}

	if pkg == "" {
		pkg = "unknown"
	}
	root.AppendChild(xmldoc.NewElement("package")).SetText(pkg)

	for _, name := range facts.CollectPackageNames([]string{pkg}) {
		for _, el := range facts.BuildPackageElements(e.PackageInfo, name) {
			root.AppendChild(el)
		}
	}

	root.AppendChild(xmldoc.NewElement("beakerlib_rpm")).SetText(lookupSingleRPM(e.PackageInfo, "beakerlib"))
	root.AppendChild(xmldoc.NewElement("beakerlib_redhat_rpm")).SetText(lookupSingleRPM(e.PackageInfo, "beakerlib-redhat"))

	if v := os.Getenv("testversion"); v != "" {
		root.AppendChild(xmldoc.NewElement("testversion")).SetText(v)
	}
	if v := testRpmBuilt(e.PackageInfo); v != "" {
		root.AppendChild(xmldoc.NewElement("testbuild")).SetText(v)
	}

	now := e.timestamp()
	root.AppendChild(xmldoc.NewElement("starttime")).SetText(now)
	root.AppendChild(xmldoc.NewElement("endtime")).SetText(now)

	if test == "" {
		test = "unknown"
	}
	root.AppendChild(xmldoc.NewElement("testname")).SetText(test)

	root.AppendChild(xmldoc.NewElement("release")).SetText(e.HostFacts.Release())
	root.AppendChild(xmldoc.NewElement("hostname")).SetText(e.HostFacts.Hostname())
	root.AppendChild(xmldoc.NewElement("arch")).SetText(e.HostFacts.Arch())
	root.AppendChild(xmldoc.NewElement("hw_cpu")).SetText(e.HostFacts.CPU())
	root.AppendChild(xmldoc.NewElement("hw_ram")).SetText(e.HostFacts.RAM())
	root.AppendChild(xmldoc.NewElement("hw_hdd")).SetText(e.HostFacts.HDD())

	if e.BeakerlibDir != "" {
		for _, path := range facts.ScanPlugins(e.BeakerlibDir+"/plugins", e.PluginGlob) {
			root.AppendChild(xmldoc.NewElement("plugin")).SetText(baseName(path))
		}
	}

	purposeText, err := readPurpose()
	if err != nil {
		return nil, newConfigError("cannot read PURPOSE file: %v", err)
	}
	root.AppendChild(xmldoc.NewElement("purpose")).SetText(purposeText)

	root.AppendChild(xmldoc.NewElement("log"))
	return root, nil
}

func readPurpose() (string, error) {
	data, err := os.ReadFile("PURPOSE")
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}

func baseName(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func lookupSingleRPM(pi facts.PackageInfo, name string) string {
	results, installed := pi.Lookup(name)
	if !installed || len(results) == 0 {
		return "not installed"
	}
	r := results[0]
	return r.Name + "-" + r.Version + "-" + r.Release
}

func testRpmBuilt(pi facts.PackageInfo) string {
	name := os.Getenv("packagename")
	if name == "" {
		return ""
	}
	results, installed := pi.Lookup(name)
	if !installed || len(results) == 0 {
		return ""
	}
	return results[0].BuildTime
}

// save persists Doc; a write failure is logged as a warning on stderr and
// returned as a PersistenceError. The caller already holds e.mu.
func (e *Engine) save() error {
	if err := persist.Save(e.JournalPath, e.Doc); err != nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: warning: failed to save journal %s: %v\n", e.JournalPath, err)
		return newPersistenceError(err)
	}
	return nil
}

// Persist saves the current document, for callers outside the normal
// per-command mutation path (the daemon's signal-handled shutdown).
func (e *Engine) Persist() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.save()
}

// logEl returns the document's log child, which must exist once Init has
// run.
func (e *Engine) logEl() *xmldoc.Node {
	log, _ := e.Doc.Find("log")
	return log
}

// lastUnfinishedPhase implements the spec's flat, non-stack scan: the most
// recently appended phase child of log whose result is still "unfinished",
// or log itself if none is open. Callers distinguish the two by identity.
func lastUnfinishedPhase(log *xmldoc.Node) *xmldoc.Node {
	var candidate *xmldoc.Node
	for _, phase := range log.FindAll("phase") {
		if v, _ := phase.Attr("result"); v == "unfinished" {
			candidate = phase
		}
	}
	if candidate == nil {
		return log
	}
	return candidate
}

// AddPhase appends a new unfinished phase to log, snapshotting current
// package details onto it, and persists.
func (e *Engine) AddPhase(ctx context.Context, name, phaseType string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	phase := xmldoc.NewElement("phase")
	phase.SetAttr("name", name)
	phase.SetAttr("type", phaseType)
	phase.SetAttr("result", "unfinished")
	phase.SetAttr("starttime", e.timestamp())
	phase.SetAttr("endtime", "")

	for _, name := range facts.CollectPackageNames(nil) {
		for _, el := range facts.BuildPackageElements(e.PackageInfo, name) {
			phase.AppendChild(el)
		}
	}

	e.logEl().AppendChild(phase)
	return e.save()
}

// phaseCounts returns (passed, failed) across a phase's test children.
func phaseCounts(phase *xmldoc.Node) (passed, failed int) {
	for _, t := range phase.FindAll("test") {
		if t.Text == "FAIL" {
			failed++
		} else {
			passed++
		}
	}
	return passed, failed
}

// FinPhase closes the last unfinished phase: timestamps it, updates the
// root endtime, scores it from its test children, and persists.
func (e *Engine) FinPhase(ctx context.Context) (result, score, phaseType, name string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	phase := lastUnfinishedPhase(e.logEl())
	if phase == e.logEl() {
		return "", "", "", "", newSemanticError("finphase: no open phase")
	}

	phaseType, _ = phase.Attr("type")
	name, _ = phase.Attr("name")

	now := e.timestamp()
	if endtime, _ := e.Doc.Find("endtime"); endtime != nil {
		endtime.SetText(now)
	}
	phase.SetAttr("endtime", now)

	_, failed := phaseCounts(phase)
	if failed == 0 {
		result = "PASS"
	} else {
		result = phaseType
	}
	phase.SetAttr("result", result)
	score = strconv.Itoa(failed)
	phase.SetAttr("score", score)

	if err := e.save(); err != nil {
		return result, score, phaseType, name, err
	}
	return result, score, phaseType, name, nil
}

// AddMessage appends a message to the last unfinished phase, or log itself
// if none is open.
func (e *Engine) AddMessage(ctx context.Context, text, severity string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	msg := xmldoc.NewElement("message")
	msg.SetAttr("severity", severity)
	msg.SetText(text)

	lastUnfinishedPhase(e.logEl()).AppendChild(msg)
	return e.save()
}

// AddTest appends an assertion to the last unfinished phase. It is a
// SemanticError, with no mutation, when no phase is open.
func (e *Engine) AddTest(ctx context.Context, message, result, command string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := lastUnfinishedPhase(e.logEl())
	if target == e.logEl() {
		return newSemanticError("test: no open phase")
	}

	t := xmldoc.NewElement("test")
	t.SetAttr("message", message)
	if command != "" {
		t.SetAttr("command", command)
	}
	t.SetText(result)

	target.AppendChild(t)
	return e.save()
}

// AddMetric appends a metric to the last unfinished phase (or log, if
// none open), rejecting a name already present there.
func (e *Engine) AddMetric(ctx context.Context, metricType, name string, value, tolerance float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := lastUnfinishedPhase(e.logEl())
	for _, m := range target.FindAll("metric") {
		if v, _ := m.Attr("name"); v == name {
			return newSemanticError("metric: name %q already present in this phase", name)
		}
	}

	m := xmldoc.NewElement("metric")
	m.SetAttr("type", metricType)
	m.SetAttr("name", name)
	m.SetAttr("tolerance", strconv.FormatFloat(tolerance, 'g', -1, 64))
	m.SetText(strconv.FormatFloat(value, 'g', -1, 64))

	target.AppendChild(m)
	return e.save()
}

// LogRpmVersion appends pkgdetails/pkgnotinstalled children derived from
// PackageInfo.Lookup(pkg) to the last unfinished phase, or log.
func (e *Engine) LogRpmVersion(ctx context.Context, pkg string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := lastUnfinishedPhase(e.logEl())
	for _, el := range facts.BuildPackageElements(e.PackageInfo, pkg) {
		target.AppendChild(el)
	}
	return e.save()
}

// TestState sums failed assertions across every phase, capped at 255.
func (e *Engine) TestState(ctx context.Context) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()

	failed := 0
	for _, phase := range e.logEl().FindAll("phase") {
		_, f := phaseCounts(phase)
		failed += f
	}
	return capByte(failed)
}

// PhaseState returns the failed-assertion count of the last unfinished
// phase, capped at 255.
func (e *Engine) PhaseState(ctx context.Context) uint8 {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, failed := phaseCounts(lastUnfinishedPhase(e.logEl()))
	return capByte(failed)
}

func capByte(n int) uint8 {
	if n > 255 {
		return 255
	}
	if n < 0 {
		return 0
	}
	return uint8(n)
}

// Dump serialises the current document. mode must be "raw" (compact) or
// "pretty"; any other value is a ProtocolError.
func (e *Engine) Dump(ctx context.Context, mode string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch mode {
	case "raw":
		return xmldoc.Serialize(e.Doc, false), nil
	case "pretty":
		return xmldoc.Serialize(e.Doc, true), nil
	default:
		return nil, newProtocolError("dump: bad type specification %q", mode)
	}
}
