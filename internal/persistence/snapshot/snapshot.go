// Package snapshot stores colony saves as zstd-compressed files: one JSON
// header line followed by the JSON save envelope.
package snapshot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"seedhive.ai/internal/persistence/meta"
	"seedhive.ai/internal/sim/digest"
	"seedhive.ai/internal/sim/model"
)

const Version = 1

type Header struct {
	Version int       `json:"version"`
	Cycle   int       `json:"cycle"`
	Phase   string    `json:"phase"`
	Digest  string    `json:"digest"`
	SavedAt time.Time `json:"saved_at"`
}

// Envelope is the persisted form of a run: the full state plus a save
// timestamp.
type Envelope struct {
	State   model.State `json:"state"`
	SavedAt time.Time   `json:"savedAt"`
}

func HeaderFor(s model.State, savedAt time.Time) Header {
	return Header{
		Version: Version,
		Cycle:   s.Cycle,
		Phase:   string(s.Phase),
		Digest:  digest.State(s),
		SavedAt: savedAt.UTC(),
	}
}

func WriteSnapshot(path string, env Envelope) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, env); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, env Envelope) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(HeaderFor(env.State, env.SavedAt))
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(env); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Sync()
}

// ReadRaw returns the header and the undecoded envelope bytes. The body is
// left raw so older saves can go through migration.
func ReadRaw(path string) (Header, []byte, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	body, err := io.ReadAll(br)
	if err != nil {
		return h, nil, fmt.Errorf("read body: %w", err)
	}
	return h, body, nil
}

func ReadSnapshot(path string) (Header, Envelope, error) {
	var env Envelope
	h, body, err := ReadRaw(path)
	if err != nil {
		return h, env, err
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return h, env, fmt.Errorf("json decode: %w", err)
	}
	return h, env, nil
}

// FileStore keeps the current run, optional per-cycle archives and the meta
// record under one directory.
type FileStore struct {
	dir string
	// ArchiveEvery keeps a copy of every save whose cycle is a multiple of
	// it under archive/. Zero disables archiving.
	ArchiveEvery int
}

func NewFileStore(dir string) *FileStore { return &FileStore{dir: dir} }

func (s *FileStore) Dir() string        { return s.dir }
func (s *FileStore) RunPath() string    { return filepath.Join(s.dir, "run.snap.zst") }
func (s *FileStore) metaPath() string   { return filepath.Join(s.dir, "meta.json") }
func (s *FileStore) archiveDir() string { return filepath.Join(s.dir, "archive") }
func (s *FileStore) ArchivePath(cycle int) string {
	return filepath.Join(s.archiveDir(), fmt.Sprintf("%06d.snap.zst", cycle))
}

// LoadRun returns the raw envelope of the current run, or nil when there is
// no save.
func (s *FileStore) LoadRun(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_, body, err := ReadRaw(s.RunPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	return body, nil
}

func (s *FileStore) SaveRun(ctx context.Context, st model.State, savedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := Envelope{State: st, SavedAt: savedAt.UTC()}
	if err := WriteSnapshot(s.RunPath(), env); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if s.ArchiveEvery > 0 && st.Cycle%s.ArchiveEvery == 0 {
		if err := WriteSnapshot(s.ArchivePath(st.Cycle), env); err != nil {
			return fmt.Errorf("archive run: %w", err)
		}
	}
	return nil
}

func (s *FileStore) ClearRun(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.RunPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(s.archiveDir())
}

// Archives lists archived cycles in ascending order.
func (s *FileStore) Archives() ([]int, error) {
	ents, err := os.ReadDir(s.archiveDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []int
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".snap.zst"))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

// LoadMeta returns a fresh meta record when none has been written. A
// corrupt record is reported so the caller can decide whether to reset.
func (s *FileStore) LoadMeta(ctx context.Context) (meta.State, error) {
	if err := ctx.Err(); err != nil {
		return meta.State{}, err
	}
	b, err := os.ReadFile(s.metaPath())
	if errors.Is(err, os.ErrNotExist) {
		return meta.New(), nil
	}
	if err != nil {
		return meta.State{}, err
	}
	var m meta.State
	if err := json.Unmarshal(b, &m); err != nil {
		return meta.New(), fmt.Errorf("meta.json: %w", err)
	}
	return m.Normalize(), nil
}

func (s *FileStore) SaveMeta(ctx context.Context, m meta.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.metaPath() + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.metaPath())
}
