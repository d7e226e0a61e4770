// Package render walks a journal document and produces the coloured text
// protocol the shell harness prints to its own terminal.
package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/hegerj/beakerlib/internal/journal/config"
	"github.com/hegerj/beakerlib/internal/journal/xmldoc"
)

const timeLayout = "2006-01-02 15:04:05 MST"

const frameRule = "::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::::"

var severityRank = map[string]int{
	"DEBUG": 0, "INFO": 1, "WARNING": 2, "ERROR": 3, "FATAL": 4, "LOG": 5,
}

var colourCodes = map[string]string{
	"PASS": "32", "FAIL": "31", "INFO": "34", "WARNING": "33",
}

// Renderer produces the framed text protocol for a journal document.
type Renderer struct {
	Now func() time.Time

	// WrapWidth is the column at which a "purpose" element's text wraps.
	WrapWidth int

	// ColourOverride resolves a severity to a config-supplied colour code,
	// consulted before the package's built-in colourCodes table.
	ColourOverride func(sev string) (string, bool)
}

// New returns a Renderer using the real wall clock for open-ended phase
// durations, with the purpose wrap width and severity colours taken from
// cfg (a nil cfg resolves to the package defaults).
func New(cfg *config.Config) *Renderer {
	return &Renderer{
		Now:            time.Now,
		WrapWidth:      cfg.ResolvePurposeWrapWidth(),
		ColourOverride: cfg.ResolveColour,
	}
}

type buf struct {
	b        strings.Builder
	colour   bool
	colourFn func(sev string) (string, bool)
}

func (w *buf) line(text, prefix string) {
	colour, uncolour := "", ""
	if w.colour {
		code, ok := "", false
		if w.colourFn != nil {
			code, ok = w.colourFn(prefix)
		}
		if !ok {
			code, ok = colourCodes[prefix]
		}
		if ok {
			colour = "\033[0;" + code + "m"
			uncolour = "\033[0m"
		}
	}
	for _, l := range strings.Split(text, "\n") {
		fmt.Fprintf(&w.b, ":: [%s%s%s] :: %s\n", colour, center(prefix, 10), uncolour, l)
	}
}

func (w *buf) head(text string) {
	w.b.WriteString("\n" + frameRule + "\n")
	w.line(text, "LOG")
	w.b.WriteString(frameRule + "\n\n")
}

// center mirrors Python's str.center: the extra padding column, when the
// total padding is odd, goes on the right.
func center(s string, width int) string {
	pad := width - len(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	right := pad - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

func wrap(text string, width int) string {
	words := strings.Split(text, " ")
	var lines []string
	cur := ""
	for _, w := range words {
		if cur == "" {
			cur = w
			continue
		}
		if len(cur)+len(w) >= width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur = cur + " " + w
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return strings.Join(lines, "\n")
}

func allowed(threshold string) map[string]bool {
	min, ok := severityRank[threshold]
	if !ok {
		min = 0
	}
	out := make(map[string]bool, len(severityRank))
	for sev, rank := range severityRank {
		out[sev] = rank >= min
	}
	return out
}

func formatDuration(start, end string, now time.Time) string {
	if end == "" {
		end = now.Format(timeLayout)
	}
	st, err1 := time.Parse(timeLayout, start)
	et, err2 := time.Parse(timeLayout, end)
	if err1 != nil || err2 != nil {
		return "duration unknown (error when computing)"
	}
	secs := int64(et.Sub(st).Seconds())

	var out string
	if secs/3600 > 0 {
		out += fmt.Sprintf("%dh ", secs/3600)
		secs %= 3600
	}
	if secs/60 > 0 {
		out += fmt.Sprintf("%dm ", secs/60)
		secs %= 60
	}
	out += fmt.Sprintf("%ds", secs)
	return out
}

// FramedHeader renders a single framed header block (the same framing
// CreateLog uses for "TEST PROTOCOL", phase names, and the trailing test
// name), for callers that print one outside a full CreateLog pass — addphase
// does this immediately after opening a phase.
func FramedHeader(text string) string {
	w := &buf{}
	w.head(text)
	return w.b.String()
}

// CreateLog renders doc's current state. Colour escapes are only emitted
// when toBuffer is false and stderr (where print-mode output ultimately
// lands) is a terminal; toBuffer==true always yields plain text suitable
// for embedding in a pipe reply.
func (r *Renderer) CreateLog(doc *xmldoc.Node, threshold string, fullJournal bool, toBuffer bool) string {
	w := &buf{colour: !toBuffer && isatty.IsTerminal(os.Stderr.Fd()), colourFn: r.ColourOverride}
	allowedSev := allowed(threshold)

	w.head("TEST PROTOCOL")

	var testname string
	phasesProcessed, phasesFailed := 0, 0

	for _, child := range doc.Children {
		switch child.Name {
		case "test_id":
			w.line("Test run ID   : "+child.Text, "LOG")
		case "package":
			w.line("Package       : "+child.Text, "LOG")
		case "testname":
			testname = child.Text
			w.line("Test name     : "+child.Text, "LOG")
		case "pkgdetails":
			w.line("Installed     : "+child.Text, "LOG")
		case "release":
			w.line("Distro        : "+child.Text, "LOG")
		case "starttime":
			w.line("Test started  : "+child.Text, "LOG")
		case "endtime":
			w.line("Test finished : "+child.Text, "LOG")
		case "arch":
			w.line("Architecture  : "+child.Text, "LOG")
		case "hw_cpu":
			if fullJournal {
				w.line("CPUs          : "+child.Text, "LOG")
			}
		case "hw_ram":
			if fullJournal {
				w.line("RAM size      : "+child.Text, "LOG")
			}
		case "hw_hdd":
			if fullJournal {
				w.line("HDD size      : "+child.Text, "LOG")
			}
		case "beakerlib_rpm":
			w.line("beakerlib RPM : "+child.Text, "LOG")
		case "beakerlib_redhat_rpm":
			w.line("bl-redhat RPM : "+child.Text, "LOG")
		case "testversion":
			w.line("Test version  : "+child.Text, "LOG")
		case "testbuild":
			w.line("Test built    : "+child.Text, "LOG")
		case "hostname":
			w.line("Hostname      : "+child.Text, "LOG")
		case "plugin":
			w.line("Plugin        : "+child.Text, "LOG")
		case "purpose":
			w.head("Test description")
			wrapWidth := r.WrapWidth
			if wrapWidth <= 0 {
				wrapWidth = config.DefaultPurposeWrapWidth
			}
			w.line(wrap(child.Text, wrapWidth), "LOG")
		case "log":
			for _, event := range child.Children {
				switch event.Name {
				case "message":
					sev, _ := event.Attr("severity")
					if allowedSev[sev] {
						w.line(event.Text, sev)
					}
				case "test":
					w.line("BEAKERLIB BUG: Assertion not in phase", "WARNING")
					msg, _ := event.Attr("message")
					if event.Text == "FAIL" {
						w.line(msg, "FAIL")
					} else {
						w.line(msg, "PASS")
					}
				case "metric":
					name, _ := event.Attr("name")
					w.line(name+": "+event.Text, "METRIC")
				case "phase":
					phasesProcessed++
					failed := r.renderPhase(w, event, allowedSev)
					if failed > 0 {
						phasesFailed++
					}
				}
			}
		}
	}

	w.head(testname)
	w.line(fmt.Sprintf("Phases: %d good, %d bad", phasesProcessed-phasesFailed, phasesFailed), "LOG")
	finalResult := "PASS"
	if phasesFailed != 0 {
		finalResult = "FAIL"
	}
	w.line("RESULT: "+testname, finalResult)

	return w.b.String()
}

func (r *Renderer) renderPhase(w *buf, phase *xmldoc.Node, allowedSev map[string]bool) int {
	name, _ := phase.Attr("name")
	result, _ := phase.Attr("result")
	start, _ := phase.Attr("starttime")
	end, _ := phase.Attr("endtime")

	w.head(name)

	passed, failed := 0, 0
	for _, child := range phase.Children {
		switch child.Name {
		case "message":
			sev, _ := child.Attr("severity")
			if allowedSev[sev] {
				w.line(child.Text, sev)
			}
		case "test":
			msg, _ := child.Attr("message")
			if child.Text == "FAIL" {
				w.line(msg, "FAIL")
				failed++
			} else {
				w.line(msg, "PASS")
				passed++
			}
		}
	}

	w.line("Duration: "+formatDuration(start, end, r.Now()), "LOG")
	w.line(fmt.Sprintf("Assertions: %d good, %d bad", passed, failed), "LOG")
	w.line("RESULT: "+name, result)

	return failed
}
