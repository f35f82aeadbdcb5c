// Package evidence persists the page snapshots captured at every
// pipeline step so a human can reconstruct what the portal looked
// like when a submission is disputed or starts failing.
package evidence

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"municipalrecords-backend/lib/timezone"
)

// Recorder writes artifacts for one pipeline run. Filenames carry a
// per-run sequence number and a timestamp so ordering within the run
// is reconstructable and names never collide.
type Recorder struct {
	dir string
	run string
	seq *atomic.Uint64
}

// NewRecorder creates the artifact directory for a run. runId
// namespaces the files of this pipeline run inside dir.
func NewRecorder(dir, runId string) (*Recorder, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, err
	}
	return &Recorder{
		dir: dir,
		run: sanitizeLabel(runId),
		seq: &atomic.Uint64{},
	}, nil
}

// Capture writes body as the artifact for the given step label and
// returns its path. It never fails the caller: on a write error it
// logs and returns "" so a recording problem cannot abort a
// submission in flight.
func (r *Recorder) Capture(label string, body []byte) string {
	if r == nil {
		return ""
	}

	seq := r.seq.Add(1)
	name := fmt.Sprintf(
		"%s_%03d_%s_%s.html",
		r.run,
		seq,
		sanitizeLabel(label),
		timezone.Now().Format("20060102_150405"),
	)
	path := filepath.Join(r.dir, name)

	err := os.WriteFile(path, body, 0600)
	if err != nil {
		slog.Warn("failed to write evidence artifact", "label", label, "err", err)
		return ""
	}
	return path
}

var labelReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "-",
	"|", "-",
	"\"", "",
	"<", "",
	">", "",
	" ", "_",
)

func sanitizeLabel(label string) string {
	out := labelReplacer.Replace(label)
	if len(out) > 100 {
		out = out[:100]
	}
	return out
}
