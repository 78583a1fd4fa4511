package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	// Flush the zstd frame so a crash loses at most the current entry.
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	// Every writer gets its own file: a frame left open by a crashed
	// process must stay the last thing in its file.
	var f *os.File
	for part := 0; ; part++ {
		var err error
		f, err = os.OpenFile(w.pathFor(hour, part), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err == nil {
			break
		}
		if !errors.Is(err, os.ErrExist) || part >= maxParts {
			return err
		}
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

const maxParts = 999

func (w *JSONLZstdWriter) pathFor(hour string, part int) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s-%03d.jsonl.zst", w.prefix, hour, part))
}

// Entry kinds.
const (
	KindNewRun     = "new_run"
	KindDirective  = "directive"
	KindChoice     = "choice"
	KindSuggestion = "suggestion"
)

// Entry records one accepted mutation with the digests around it. Dilemma
// and Suggestion are kept raw so the log stays readable by older tools.
type Entry struct {
	Seq        int64           `json:"seq"`
	At         time.Time       `json:"at"`
	Kind       string          `json:"kind"`
	Cycle      int             `json:"cycle"`
	Seed       int64           `json:"seed,omitempty"`
	Text       string          `json:"text,omitempty"`
	Dilemma    json.RawMessage `json:"dilemma,omitempty"`
	ChoiceID   string          `json:"choice_id,omitempty"`
	Suggestion json.RawMessage `json:"suggestion,omitempty"`
	Difficulty json.RawMessage `json:"difficulty,omitempty"`
	Events     []string        `json:"events,omitempty"`
	Before     string          `json:"before"`
	Digest     string          `json:"digest"`
}

// CycleLogger writes one compressed JSONL entry per accepted mutation.
type CycleLogger struct{ w *JSONLZstdWriter }

func NewCycleLogger(runDir string) *CycleLogger {
	return &CycleLogger{w: NewJSONLZstdWriter(filepath.Join(runDir, "events"), "events")}
}

func (l *CycleLogger) WriteEntry(e Entry) error { return l.w.Write(e) }
func (l *CycleLogger) Close() error             { return l.w.Close() }

// ListFiles returns the event files under dir in write order.
func ListFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "events-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadFile decodes every entry in one event file. A frame cut short at the
// end of the file (a writer that died before closing) ends the file without
// error; any other decode failure is returned with the entries read so far.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)

	var out []Entry
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return out, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return out, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return out, nil
}

// ReadDir returns all entries under dir in write order.
func ReadDir(dir string) ([]Entry, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return nil, err
	}
	var all []Entry
	for _, p := range files {
		es, err := ReadFile(p)
		if err != nil {
			return nil, err
		}
		all = append(all, es...)
	}
	return all, nil
}
