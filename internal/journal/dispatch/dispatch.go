// Package dispatch parses one shell-quoted command line from the pipe,
// routes it to the journal engine, and formats the reply.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hegerj/beakerlib/internal/journal/config"
	"github.com/hegerj/beakerlib/internal/journal/engine"
	"github.com/hegerj/beakerlib/internal/journal/render"
	"github.com/hegerj/beakerlib/internal/version"
)

// Dispatcher wires a command line to the journal engine and the renderer,
// and formats the pipe reply.
type Dispatcher struct {
	Engine   *engine.Engine
	Renderer *render.Renderer

	// PrintSink receives output for verbs whose original shell harness
	// printed directly rather than returning reply text (addphase's framed
	// header, non-toVar dump/printlog). Defaults to os.Stderr: the daemon's
	// stdout is not wired to anything per the wire protocol.
	PrintSink io.Writer
}

// New returns a Dispatcher bound to eng, with a renderer whose colour table
// and purpose wrap width come from cfg (a nil cfg yields the package
// defaults).
func New(eng *engine.Engine, cfg *config.Config) *Dispatcher {
	return &Dispatcher{Engine: eng, Renderer: render.New(cfg), PrintSink: os.Stderr}
}

func (d *Dispatcher) printSink() io.Writer {
	if d.PrintSink != nil {
		return d.PrintSink
	}
	return os.Stderr
}

// DeterminePackage applies spec.md §6's rule: PACKAGE env if set, else the
// third slash-segment of test, else "unknown".
func DeterminePackage(test string) string {
	if p := os.Getenv("PACKAGE"); p != "" {
		return p
	}
	parts := strings.Split(test, "/")
	if len(parts) > 3 && parts[3] != "" {
		return parts[3]
	}
	return "unknown"
}

// Reply formats the literal wire reply: "message:<text>-code:<n>\n".
func Reply(message string, code int) string {
	return fmt.Sprintf("message:%s-code:%d\n", message, code)
}

// Dispatch parses and executes one command line, returning the formatted
// reply ready to write back to the pipe.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) string {
	tokens, err := Tokenize(line)
	if err != nil || len(tokens) == 0 {
		return Reply("", 1)
	}

	verb := tokens[0]
	opts, err := parseOptions(tokens[1:])
	if err != nil {
		return Reply("", 1)
	}

	switch verb {
	case "init":
		return d.dispatchInit(ctx, opts)
	case "dump":
		return d.dispatchDump(ctx, opts)
	case "printlog":
		return d.dispatchPrintlog(ctx, opts)
	case "addphase":
		return d.dispatchAddPhase(ctx, opts)
	case "log":
		return d.dispatchLog(ctx, opts)
	case "test":
		return d.dispatchTest(ctx, opts)
	case "metric":
		return d.dispatchMetric(ctx, opts)
	case "finphase":
		return d.dispatchFinPhase(ctx)
	case "teststate":
		return Reply("", int(d.Engine.TestState(ctx)))
	case "phasestate":
		return Reply("", int(d.Engine.PhaseState(ctx)))
	case "rpm":
		return d.dispatchRpm(ctx, opts)
	case "version":
		return Reply(version.Version, 0)
	default:
		return Reply("", 1)
	}
}

func (d *Dispatcher) dispatchInit(ctx context.Context, opts Options) string {
	if !opts.HasTest {
		return Reply("", 1)
	}
	pkg := DeterminePackage(opts.Test)
	if err := d.Engine.Init(ctx, opts.Test, pkg); err != nil {
		return Reply("", 1)
	}
	return Reply("", 0)
}

func (d *Dispatcher) dispatchDump(ctx context.Context, opts Options) string {
	if !opts.HasType {
		return Reply("", 1)
	}
	data, err := d.Engine.Dump(ctx, opts.Type)
	if err != nil {
		return Reply("", 1)
	}
	if opts.Message == "toVar" {
		return Reply(string(data), 0)
	}
	fmt.Fprintln(d.printSink(), string(data))
	return Reply("", 0)
}

func (d *Dispatcher) dispatchPrintlog(ctx context.Context, opts Options) string {
	if !opts.HasSeverity {
		return Reply("", 1)
	}
	if opts.Message == "toVar" {
		text := d.Renderer.CreateLog(d.Engine.Doc, opts.Severity, opts.FullJournal, true)
		return Reply(text, 0)
	}
	text := d.Renderer.CreateLog(d.Engine.Doc, opts.Severity, opts.FullJournal, false)
	fmt.Fprint(d.printSink(), text)
	return Reply("", 0)
}

func (d *Dispatcher) dispatchAddPhase(ctx context.Context, opts Options) string {
	if !opts.HasName || !opts.HasType {
		return Reply("", 1)
	}
	if err := d.Engine.AddPhase(ctx, opts.Name, opts.Type); err != nil {
		return Reply("", 1)
	}
	fmt.Fprint(d.printSink(), render.FramedHeader(opts.Name))
	return Reply("", 0)
}

func (d *Dispatcher) dispatchLog(ctx context.Context, opts Options) string {
	if !opts.HasMessage {
		return Reply("", 1)
	}
	severity := opts.Severity
	if severity == "" {
		severity = "LOG"
	}
	if err := d.Engine.AddMessage(ctx, opts.Message, severity); err != nil {
		return Reply("", 1)
	}
	return Reply("", 0)
}

func (d *Dispatcher) dispatchTest(ctx context.Context, opts Options) string {
	if !opts.HasMessage {
		return Reply("", 1)
	}
	result := opts.Result
	if result == "" {
		result = "FAIL"
	}
	if err := d.Engine.AddTest(ctx, opts.Message, result, opts.Command); err != nil {
		return Reply("", 1)
	}
	fmt.Fprintln(d.printSink(), formatAssertionLine(opts.Message, result))
	return Reply("", 0)
}

func formatAssertionLine(message, result string) string {
	return fmt.Sprintf(":: [%10s] :: %s", result, message)
}

func (d *Dispatcher) dispatchMetric(ctx context.Context, opts Options) string {
	if !opts.HasName || !opts.HasType || !opts.HasValue || !opts.HasTolerance {
		return Reply("", 1)
	}
	value, err := strconv.ParseFloat(opts.Value, 64)
	if err != nil {
		return Reply("", 1)
	}
	tolerance, err := strconv.ParseFloat(opts.Tolerance, 64)
	if err != nil {
		return Reply("", 1)
	}
	if err := d.Engine.AddMetric(ctx, opts.Type, opts.Name, value, tolerance); err != nil {
		return Reply("", 1)
	}
	return Reply("", 0)
}

func (d *Dispatcher) dispatchFinPhase(ctx context.Context) string {
	result, score, phaseType, name, err := d.Engine.FinPhase(ctx)
	if err != nil {
		return Reply("", 1)
	}
	code, err := strconv.Atoi(score)
	if err != nil {
		code = 1
	}
	return Reply(fmt.Sprintf("%s:%s:%s", phaseType, result, name), code)
}

func (d *Dispatcher) dispatchRpm(ctx context.Context, opts Options) string {
	if !opts.HasPackage {
		return Reply("", 1)
	}
	if err := d.Engine.LogRpmVersion(ctx, opts.Package); err != nil {
		return Reply("", 1)
	}
	return Reply("", 0)
}
