package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hegerj/beakerlib/internal/journal/engine"
	"github.com/hegerj/beakerlib/internal/journal/facts"
)

func TestProcessAliveForCurrentProcess(t *testing.T) {
	if !facts.ProcessAlive(os.Getpid()) {
		t.Fatalf("ProcessAlive(self) = false, want true")
	}
}

func TestProcessAliveForUnlikelyPID(t *testing.T) {
	if facts.ProcessAlive(1 << 30) {
		t.Fatalf("ProcessAlive(huge pid) = true, want false")
	}
}

func TestSaveAndExitFailsWithoutInit(t *testing.T) {
	dir := t.TempDir()
	eng := engine.New(filepath.Join(dir, "j.xml"), filepath.Join(dir, "bl"), stubHostFacts{}, facts.NotInstalledPackageInfo{}, "")
	if code := saveAndExit(eng); code != 1 {
		t.Fatalf("saveAndExit without Init = %d, want 1 (matches original: nil journal -> exit 1)", code)
	}
}

func TestSaveAndExitSucceedsAfterInit(t *testing.T) {
	dir := t.TempDir()
	eng := engine.New(filepath.Join(dir, "j.xml"), filepath.Join(dir, "bl"), stubHostFacts{}, facts.NotInstalledPackageInfo{}, "")
	if err := eng.Init(context.Background(), "/a/b/foo/bar", "foo"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if code := saveAndExit(eng); code != 0 {
		t.Fatalf("saveAndExit after Init = %d, want 0", code)
	}
	if _, err := os.Stat(eng.JournalPath); err != nil {
		t.Fatalf("expected journal file on disk: %v", err)
	}
}

type stubHostFacts struct{}

func (stubHostFacts) Hostname() string { return "test-host" }
func (stubHostFacts) Arch() string     { return "x86_64" }
func (stubHostFacts) CPU() string      { return "1 x Test CPU" }
func (stubHostFacts) RAM() string      { return "1024 MB" }
func (stubHostFacts) HDD() string      { return "10.0 GB" }
func (stubHostFacts) Release() string  { return "Test Linux 1" }
