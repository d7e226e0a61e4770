package facts

import (
	"regexp"
	"testing"
)

func TestDefaultHostFactsReturnFormattedStrings(t *testing.T) {
	var hf DefaultHostFacts

	if hf.Hostname() == "" {
		t.Fatalf("Hostname() returned empty string")
	}
	if hf.Arch() == "" {
		t.Fatalf("Arch() returned empty string")
	}

	if !regexp.MustCompile(`^\d+ x .+$`).MatchString(hf.CPU()) {
		t.Fatalf("CPU() = %q, want format \"<n> x <model>\"", hf.CPU())
	}
	if !regexp.MustCompile(`^(\d+|unknown) MB$`).MatchString(hf.RAM()) {
		t.Fatalf("RAM() = %q, want format \"<n> MB\" or \"unknown MB\"", hf.RAM())
	}
	if !regexp.MustCompile(`^(\d+\.\d GB|unknown)$`).MatchString(hf.HDD()) {
		t.Fatalf("HDD() = %q, want format \"<n.n> GB\" or \"unknown\"", hf.HDD())
	}
	if hf.Release() == "" {
		t.Fatalf("Release() returned empty string, want at least \"unknown\"")
	}
}
