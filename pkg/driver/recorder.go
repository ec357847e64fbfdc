package driver

import (
	"context"
	"fmt"

	"github.com/lemonberrylabs/jitcalc/pkg/expr"
	"github.com/lemonberrylabs/jitcalc/pkg/store"
)

// Check lexes and parses src without generating code and returns the
// number of expressions it contains.
func Check(src string) (int, error) {
	toks, err := expr.TokenizeString(src)
	if err != nil {
		return 0, err
	}
	p := expr.NewParser(toks)
	n := 0
	for !p.Finished() {
		if _, err := p.CreateParseTree(); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Results converts the outcomes of a report to their stored form.
func Results(r *Report) []store.Result {
	if r == nil {
		return nil
	}
	out := make([]store.Result, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = store.Result{Index: o.Index, Tree: o.Tree, Length: o.Length, Value: o.Value}
		if o.Err != nil {
			out[i].Error = o.Err.Error()
		}
	}
	return out
}

// Recorder runs stored programs and records every run in the store.
type Recorder struct {
	store *store.Store
	opts  Options
}

// NewRecorder creates a recorder. Report lines go to opts.Out as usual.
func NewRecorder(s *store.Store, opts Options) *Recorder {
	return &Recorder{store: s, opts: opts}
}

// Run executes the current revision of a stored program. A run that hits
// a lexical, parse or arithmetic error is stored as failed together with
// the results produced before the error.
func (r *Recorder) Run(ctx context.Context, programName string) (*store.Run, error) {
	run, src, err := r.store.CreateRun(programName)
	if err != nil {
		return nil, err
	}

	report, runErr := NewEngine(r.opts).RunString(ctx, src)
	if runErr == nil && report != nil {
		runErr = report.Err()
	}
	if runErr == nil && report != nil {
		for _, o := range report.Outcomes {
			if o.Err != nil {
				runErr = o.Err
				break
			}
		}
	}

	results := Results(report)
	if runErr != nil {
		if err := r.store.FailRun(run.Name, results, runErr); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	} else if err := r.store.CompleteRun(run.Name, results); err != nil {
		return nil, fmt.Errorf("recording run: %w", err)
	}
	return r.store.GetRun(run.Name)
}
