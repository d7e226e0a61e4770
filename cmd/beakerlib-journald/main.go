// Command beakerlib-journald is the journalling daemon a beakerlib test run
// starts: it serves the shell harness's commands over a named pipe, keeps an
// in-memory XML journal, persists it after every mutation, and exits when
// either the test process dies or it is signalled.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hegerj/beakerlib/internal/journal/config"
	"github.com/hegerj/beakerlib/internal/journal/dispatch"
	"github.com/hegerj/beakerlib/internal/journal/engine"
	"github.com/hegerj/beakerlib/internal/journal/facts"
)

func main() {
	os.Exit(run())
}

func run() int {
	journalPath := os.Getenv("BEAKERLIB_JOURNAL")
	if journalPath == "" {
		fmt.Fprintln(os.Stderr, "beakerlib-journald: BEAKERLIB_JOURNAL not defined in the environment")
		return 1
	}
	pipePath := os.Getenv("BEAKERLIB_PIPE")
	if pipePath == "" {
		fmt.Fprintln(os.Stderr, "beakerlib-journald: BEAKERLIB_PIPE not defined in the environment")
		return 1
	}
	testPIDStr := os.Getenv("BEAKERLIB_TESTPID")
	if testPIDStr == "" {
		fmt.Fprintln(os.Stderr, "beakerlib-journald: BEAKERLIB_TESTPID not defined in the environment")
		return 1
	}
	testPID, err := strconv.Atoi(testPIDStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: invalid BEAKERLIB_TESTPID %q: %v\n", testPIDStr, err)
		return 1
	}
	beakerlibDir := os.Getenv("BEAKERLIB")
	if beakerlibDir == "" {
		fmt.Fprintln(os.Stderr, "beakerlib-journald: BEAKERLIB not defined in the environment")
		return 1
	}
	if _, err := os.Stat(pipePath); err != nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: %s does not exist\n", pipePath)
		return 1
	}

	cfg, err := config.Load(os.Getenv("BEAKERLIB_JOURNALD_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: %v\n", err)
		return 1
	}

	var pkgInfo facts.PackageInfo = facts.NotInstalledPackageInfo{}
	if cfg.ResolvePackageCacheEnabled() {
		pkgInfo = facts.NewCachingPackageInfo(pkgInfo, filepath.Join(filepath.Dir(journalPath), ".beakerlib-pkgcache.msgpack"))
	}

	eng := engine.New(journalPath, beakerlibDir, facts.DefaultHostFacts{}, pkgInfo, cfg.ResolvePluginGlob())
	fmt.Fprintf(os.Stderr, "beakerlib-journald: run=%s\n", eng.RunID)
	d := dispatch.New(eng, cfg)

	ctx, stopSignals := signalShutdownContext(func() { os.Exit(saveAndExit(eng)) })
	defer stopSignals()

	for {
		if ctx.Err() != nil {
			return saveAndExit(eng)
		}
		if !facts.ProcessAlive(testPID) {
			fmt.Fprintln(os.Stderr, "beakerlib-journald: test process not running.")
			return saveAndExit(eng)
		}

		line, err := readPipe(pipePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "beakerlib-journald: reading pipe: %v\n", err)
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		reply := d.Dispatch(ctx, line)
		if err := writePipe(pipePath, reply); err != nil {
			fmt.Fprintf(os.Stderr, "beakerlib-journald: writing pipe: %v\n", err)
		}
	}
}

func readPipe(path string) (string, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func writePipe(path, text string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n", strings.TrimSuffix(text, "\n"))
	return err
}

// signalShutdownContext wires the daemon's full termination signal set to a
// cancellable context, following the teacher's signalCancelContext pattern
// (cmd/kilroy/main.go) generalized from SIGINT/SIGTERM to the original
// daemon's wider signal list. On the first signal it cancels the context and
// then calls onSignal from its own goroutine, so the handler runs even while
// the main loop is blocked opening or reading the pipe.
func signalShutdownContext(onSignal func()) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh,
		syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT,
		syscall.SIGILL, syscall.SIGABRT, syscall.SIGFPE, syscall.SIGSEGV,
		syscall.SIGALRM, syscall.SIGBUS, syscall.SIGPIPE,
	)
	stopCh := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			fmt.Fprintf(os.Stderr, "beakerlib-journald: received signal %s\n", sig)
			cancel()
			if onSignal != nil {
				onSignal()
			}
		case <-stopCh:
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel()
	}
	return ctx, cleanup
}

func saveAndExit(eng *engine.Engine) int {
	if eng.Doc == nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: failed to save journal %s, exiting...\n", eng.JournalPath)
		return 1
	}
	if err := eng.Persist(); err != nil {
		fmt.Fprintf(os.Stderr, "beakerlib-journald: failed to save journal %s: %v, exiting...\n", eng.JournalPath, err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "beakerlib-journald: saved journal to %s. Exiting successfully...\n", eng.JournalPath)
	return 0
}
