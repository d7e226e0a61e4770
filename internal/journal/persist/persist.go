// Package persist implements the journal's atomic save-to-disk step.
package persist

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"

	"github.com/hegerj/beakerlib/internal/journal/xmldoc"
)

// checksumLogger is the target for a sidecar-write failure's advisory
// message; a package var so tests can capture it instead of writing to the
// daemon's actual stderr.
var checksumLogger = func(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// Save atomically writes doc (pretty-printed) to path: write to a
// ULID-suffixed temp file in the same directory, then rename over path so
// concurrent readers never observe a partial write. It also best-effort
// writes a blake3 checksum sidecar at path+".b3"; a sidecar failure does not
// fail the save.
//
// A failed save is not fatal to the engine: the in-memory document is kept,
// and the returned error only reports whether the write itself succeeded;
// the engine turns it into a PersistenceError and a non-zero reply status.
func Save(path string, doc *xmldoc.Node) error {
	if path == "" {
		return fmt.Errorf("persist: empty journal path")
	}
	data := xmldoc.Serialize(doc, true)

	tmp := fmt.Sprintf("%s.%s.tmp", path, ulid.Make().String())

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("persist: rename into place: %w", err)
	}

	if err := writeChecksum(path, data); err != nil {
		checksumLogger("persist: checksum sidecar failed: %v\n", err)
	}
	return nil
}

func writeChecksum(path string, data []byte) error {
	sum := blake3.Sum256(data)
	sidecarTmp := fmt.Sprintf("%s.b3.%s.tmp", path, ulid.Make().String())
	if err := os.WriteFile(sidecarTmp, []byte(hex.EncodeToString(sum[:])), 0o644); err != nil {
		return err
	}
	return os.Rename(sidecarTmp, path+".b3")
}

// VerifyChecksum reports whether path's current contents match its .b3
// sidecar. A missing sidecar or missing journal returns the read error with
// ok=false, so the caller can tell "cannot check" apart from a real mismatch
// (ok=false, nil error) and warn only on the latter; the result is never a
// gate on loading the journal.
func VerifyChecksum(path string) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	wantHex, err := os.ReadFile(path + ".b3")
	if err != nil {
		return false, err
	}
	got := blake3.Sum256(data)
	return hex.EncodeToString(got[:]) == string(wantHex), nil
}

// Load parses the journal at path, if present. It returns (nil, nil, false)
// when the file does not exist, distinguishing "no journal yet" from a
// parse failure.
func Load(path string) (doc *xmldoc.Node, err error, found bool) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, nil, false
		}
		return nil, readErr, true
	}
	n, parseErr := xmldoc.Parse(data)
	if parseErr != nil {
		return nil, parseErr, true
	}
	return n, nil, true
}
