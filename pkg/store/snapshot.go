package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("store: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type snapshot struct {
	Version    int        `json:"version"`
	RevCounter int64      `json:"revCounter"`
	Programs   []*Program `json:"programs"`
	Runs       []*Run     `json:"runs"`
}

// Save writes the whole store to w as CBOR.
func (s *Store) Save(w io.Writer) error {
	s.mu.RLock()
	snap := snapshot{Version: snapshotVersion, RevCounter: s.revCounter}
	for _, p := range s.programs {
		snap.Programs = append(snap.Programs, copyProgram(p))
	}
	for _, r := range s.runs {
		snap.Runs = append(snap.Runs, copyRun(r))
	}
	s.mu.RUnlock()

	data, err := cborEncMode.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Load replaces the contents of the store with a snapshot read from r.
func (s *Store) Load(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	var snap snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	programs := make(map[string]*Program, len(snap.Programs))
	for _, p := range snap.Programs {
		programs[p.Name] = p
	}
	runs := make(map[string]*Run, len(snap.Runs))
	for _, r := range snap.Runs {
		runs[r.Name] = r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.programs = programs
	s.runs = runs
	s.revCounter = snap.RevCounter
	return nil
}

// SaveFile writes a snapshot to path atomically.
func (s *Store) SaveFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := s.Save(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadFile loads a snapshot from path. A missing file leaves the store
// empty and is not an error.
func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	return s.Load(f)
}
