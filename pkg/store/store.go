// Package store provides in-memory storage for programs and their runs.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
)

// ErrNotFound is wrapped by every lookup miss.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is wrapped when creating a program whose name is taken.
var ErrAlreadyExists = errors.New("already exists")

// ProgramState represents the state of a stored program.
type ProgramState string

const (
	ProgramActive ProgramState = "ACTIVE"
)

// RunState represents the state of a program run.
type RunState string

const (
	RunActive    RunState = "ACTIVE"
	RunSucceeded RunState = "SUCCEEDED"
	RunFailed    RunState = "FAILED"
)

// Program is a stored expression source.
type Program struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	State       ProgramState `json:"state"`
	RevisionID  string       `json:"revisionId"`
	Source      string       `json:"source"`
	Expressions int          `json:"expressions"`
	CreateTime  time.Time    `json:"createTime"`
	UpdateTime  time.Time    `json:"updateTime"`
}

// ID returns the last segment of the program name.
func (p *Program) ID() string {
	return p.Name[strings.LastIndex(p.Name, "/")+1:]
}

// Result is the stored outcome of one expression.
type Result struct {
	Index  int    `json:"index"`
	Tree   string `json:"tree"`
	Length int    `json:"length"`
	Value  int32  `json:"value"`
	Error  string `json:"error,omitempty"`
}

// RunError describes why a run failed.
type RunError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// Run is one execution of a stored program.
type Run struct {
	Name              string    `json:"name"`
	State             RunState  `json:"state"`
	ProgramRevisionID string    `json:"programRevisionId"`
	Results           []Result  `json:"results,omitempty"`
	Error             *RunError `json:"error,omitempty"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime,omitempty"`
}

// ID returns the last segment of the run name.
func (r *Run) ID() string {
	return r.Name[strings.LastIndex(r.Name, "/")+1:]
}

// Program returns the name of the program the run belongs to.
func (r *Run) Program() string {
	if i := strings.Index(r.Name, "/runs/"); i >= 0 {
		return r.Name[:i]
	}
	return ""
}

// Store is a thread-safe in-memory storage for programs and runs. Getters
// return copies, so callers never race with later updates.
type Store struct {
	mu       sync.RWMutex
	programs map[string]*Program
	runs     map[string]*Run

	revCounter int64
}

// New creates a new empty store.
func New() *Store {
	return &Store{
		programs: make(map[string]*Program),
		runs:     make(map[string]*Run),
	}
}

var programIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidProgramID reports whether id can be used as a program ID: a
// lowercase letter followed by lowercase letters, digits, '_' or '-', at
// most 128 bytes long.
func ValidProgramID(id string) bool {
	return len(id) <= 128 && programIDPattern.MatchString(id)
}

// ProgramName returns the resource name of a program ID.
func ProgramName(programID string) string {
	return "programs/" + programID
}

// CreateProgram stores a new program.
func (s *Store) CreateProgram(programID, source, description string, expressions int) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := ProgramName(programID)
	if _, exists := s.programs[name]; exists {
		return nil, fmt.Errorf("program '%s' %w", name, ErrAlreadyExists)
	}

	s.revCounter++
	now := time.Now()
	p := &Program{
		Name:        name,
		Description: description,
		State:       ProgramActive,
		RevisionID:  revisionID(s.revCounter),
		Source:      source,
		Expressions: expressions,
		CreateTime:  now,
		UpdateTime:  now,
	}
	s.programs[name] = p
	return copyProgram(p), nil
}

// GetProgram retrieves a program by its full name.
func (s *Store) GetProgram(name string) (*Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[name]
	if !ok {
		return nil, fmt.Errorf("program '%s' %w", name, ErrNotFound)
	}
	return copyProgram(p), nil
}

// ListPrograms returns all programs ordered by name.
func (s *Store) ListPrograms() []*Program {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Program, 0, len(s.programs))
	for _, p := range s.programs {
		result = append(result, copyProgram(p))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// UpdateProgram replaces a program's source and assigns a new revision.
func (s *Store) UpdateProgram(name, source, description string, expressions int) (*Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[name]
	if !ok {
		return nil, fmt.Errorf("program '%s' %w", name, ErrNotFound)
	}

	s.revCounter++
	p.Source = source
	p.Expressions = expressions
	if description != "" {
		p.Description = description
	}
	p.RevisionID = revisionID(s.revCounter)
	p.UpdateTime = time.Now()

	return copyProgram(p), nil
}

// DeleteProgram removes a program and its runs.
func (s *Store) DeleteProgram(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.programs[name]; !ok {
		return fmt.Errorf("program '%s' %w", name, ErrNotFound)
	}
	delete(s.programs, name)

	prefix := name + "/runs/"
	for runName := range s.runs {
		if strings.HasPrefix(runName, prefix) {
			delete(s.runs, runName)
		}
	}
	return nil
}

// CreateRun creates an active run of the program's current revision and
// returns it with that revision's source. Both are read under one lock, so
// the source always belongs to the run's ProgramRevisionID.
func (s *Store) CreateRun(programName string) (*Run, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.programs[programName]
	if !ok {
		return nil, "", fmt.Errorf("program '%s' %w", programName, ErrNotFound)
	}

	r := &Run{
		Name:              fmt.Sprintf("%s/runs/%s", programName, uuid.NewString()),
		State:             RunActive,
		ProgramRevisionID: p.RevisionID,
		StartTime:         time.Now(),
	}
	s.runs[r.Name] = r
	return copyRun(r), p.Source, nil
}

// GetRun retrieves a run by name.
func (s *Store) GetRun(name string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.runs[name]
	if !ok {
		return nil, fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}
	return copyRun(r), nil
}

// ListRuns returns the runs of a program, oldest first.
func (s *Store) ListRuns(programName string) []*Run {
	return s.listRuns(programName + "/runs/")
}

// ListAllRuns returns every run, oldest first.
func (s *Store) ListAllRuns() []*Run {
	return s.listRuns("")
}

func (s *Store) listRuns(prefix string) []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Run
	for name, r := range s.runs {
		if strings.HasPrefix(name, prefix) {
			result = append(result, copyRun(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartTime.Equal(result[j].StartTime) {
			return result[i].StartTime.Before(result[j].StartTime)
		}
		return result[i].Name < result[j].Name
	})
	return result
}

// CountRuns returns the number of runs in each state.
func (s *Store) CountRuns() map[RunState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[RunState]int{RunActive: 0, RunSucceeded: 0, RunFailed: 0}
	for _, r := range s.runs {
		counts[r.State]++
	}
	return counts
}

// CompleteRun marks a run as succeeded with its results.
func (s *Store) CompleteRun(name string, results []Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}
	r.State = RunSucceeded
	r.EndTime = time.Now()
	r.Results = append([]Result(nil), results...)
	return nil
}

// FailRun marks a run as failed. Results produced before the failure are
// kept.
func (s *Store) FailRun(name string, results []Result, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.runs[name]
	if !ok {
		return fmt.Errorf("run '%s' %w", name, ErrNotFound)
	}
	r.State = RunFailed
	r.EndTime = time.Now()
	r.Results = append([]Result(nil), results...)
	r.Error = NewRunError(err)
	return nil
}

// NewRunError describes err, including its kind and source position when
// it came from the pipeline.
func NewRunError(err error) *RunError {
	re := &RunError{Kind: expr.KindOf(err), Message: err.Error()}
	var k expr.Kinded
	if errors.As(err, &k) {
		pos := k.Position()
		re.Line, re.Column = pos.Line, pos.Column
	}
	return re
}

func revisionID(n int64) string {
	return fmt.Sprintf("%06d-%s", n, uuid.NewString()[:3])
}

func copyProgram(p *Program) *Program {
	c := *p
	return &c
}

func copyRun(r *Run) *Run {
	c := *r
	c.Results = append([]Result(nil), r.Results...)
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}
