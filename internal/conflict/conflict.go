// Package conflict decides what happens when a job's destination already
// exists.
//
// A Resolver is scoped to a single run. It remembers a RememberForAll answer
// and the destinations already claimed by earlier jobs in the run, so two
// jobs writing the same relative path collide with each other the same way
// they would with a file left on disk. A claimed destination has one writer
// at a time: overwriting a path another job still holds waits until that job
// calls Release.
package conflict

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Action is the run-wide policy for existing destinations.
type Action string

const (
	ActionAsk       Action = "ask"
	ActionOverwrite Action = "overwrite"
	ActionSkip      Action = "skip"
	ActionRename    Action = "rename"
)

// ParseAction resolves a case-insensitive policy name.
func ParseAction(value string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(value))) {
	case ActionAsk:
		return ActionAsk, nil
	case ActionOverwrite:
		return ActionOverwrite, nil
	case ActionSkip:
		return ActionSkip, nil
	case ActionRename:
		return ActionRename, nil
	default:
		return "", fmt.Errorf("unsupported file exists action %q (want ask, overwrite, skip, or rename)", value)
	}
}

// Choice is a concrete resolution.
type Choice int

const (
	ChooseOverwrite Choice = iota
	ChooseSkip
	ChooseRename
	ChooseCancel
)

func (c Choice) String() string {
	switch c {
	case ChooseOverwrite:
		return "overwrite"
	case ChooseSkip:
		return "skip"
	case ChooseRename:
		return "rename"
	case ChooseCancel:
		return "cancel"
	default:
		return fmt.Sprintf("choice(%d)", int(c))
	}
}

// Decision is an answer from the user.
type Decision struct {
	Choice         Choice
	RememberForAll bool
}

// Asker prompts for a decision about an existing destination.
type Asker interface {
	AskFileAction(ctx context.Context, path string) (Decision, error)
}

// AskerFunc adapts a function to Asker.
type AskerFunc func(ctx context.Context, path string) (Decision, error)

// AskFileAction calls f.
func (f AskerFunc) AskFileAction(ctx context.Context, path string) (Decision, error) {
	return f(ctx, path)
}

// Outcome is the resolved destination for one job.
type Outcome struct {
	Choice Choice
	// Path is the destination to write; it differs from the requested path
	// only after a rename.
	Path string
	// Existed reports whether the requested destination was taken.
	Existed bool
}

// Resolver applies a policy to destinations within one run.
type Resolver struct {
	policy Action
	asker  Asker
	exists func(string) bool

	mu         sync.Mutex
	claimed    map[string]*claim
	remembered *Choice

	askMu sync.Mutex
}

// NewResolver builds a resolver. exists reports whether a path is on disk;
// asker is only required for ActionAsk.
func NewResolver(policy Action, asker Asker, exists func(string) bool) (*Resolver, error) {
	if _, err := ParseAction(string(policy)); err != nil {
		return nil, err
	}
	if policy == ActionAsk && asker == nil {
		return nil, fmt.Errorf("file exists action %q requires an asker", policy)
	}
	if exists == nil {
		return nil, fmt.Errorf("conflict resolver requires an exists predicate")
	}
	return &Resolver{
		policy:  policy,
		asker:   asker,
		exists:  exists,
		claimed: make(map[string]*claim),
	}, nil
}

// claim marks a destination written by a job in this run. released is
// closed once the owning job has finished with the path.
type claim struct {
	released chan struct{}
	done     bool
}

// Policy returns the configured policy.
func (r *Resolver) Policy() Action {
	return r.policy
}

// Resolve decides what to do with path. Free destinations resolve to
// ChooseOverwrite without consulting the policy. Only the calling job waits
// on a prompt; prompts are asked one at a time. Every ChooseOverwrite or
// ChooseRename outcome owns Outcome.Path until Release is called with it.
func (r *Resolver) Resolve(ctx context.Context, path string) (Outcome, error) {
	r.mu.Lock()
	if !r.takenLocked(path) {
		r.claimLocked(path)
		r.mu.Unlock()
		return Outcome{Choice: ChooseOverwrite, Path: path}, nil
	}
	choice, decided := r.policyChoiceLocked()
	if decided {
		out := r.applyLocked(choice, path)
		r.mu.Unlock()
		return r.await(ctx, out), nil
	}
	r.mu.Unlock()

	out, err := r.ask(ctx, path)
	if err != nil {
		return Outcome{}, err
	}
	return r.await(ctx, out), nil
}

// ask prompts for path, one prompt at a time across the run.
func (r *Resolver) ask(ctx context.Context, path string) (Outcome, error) {
	r.askMu.Lock()
	defer r.askMu.Unlock()

	if ctx.Err() != nil {
		return Outcome{Choice: ChooseCancel, Path: path, Existed: true}, nil
	}

	// Another prompt may have set a remembered choice while we waited.
	r.mu.Lock()
	if r.remembered != nil {
		out := r.applyLocked(*r.remembered, path)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	decision, err := r.asker.AskFileAction(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{Choice: ChooseCancel, Path: path, Existed: true}, nil
		}
		return Outcome{}, fmt.Errorf("ask file action for %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if decision.RememberForAll && decision.Choice != ChooseCancel && r.remembered == nil {
		c := decision.Choice
		r.remembered = &c
	}
	return r.applyLocked(decision.Choice, path), nil
}

// Release ends the caller's ownership of path. Later jobs still see the path
// as taken. Releasing a path that is not held is a no-op.
func (r *Resolver) Release(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.claimed[path]; ok && !c.done {
		c.done = true
		close(c.released)
	}
}

// await claims out.Path for an overwrite, waiting for any job of this run
// that still holds it. A cancelled ctx turns the outcome into ChooseCancel.
func (r *Resolver) await(ctx context.Context, out Outcome) Outcome {
	if out.Choice != ChooseOverwrite {
		return out
	}
	for {
		r.mu.Lock()
		held := r.heldLocked(out.Path)
		if held == nil {
			r.claimLocked(out.Path)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		select {
		case <-held:
		case <-ctx.Done():
			return Outcome{Choice: ChooseCancel, Path: out.Path, Existed: true}
		}
	}
}

// Remembered returns the RememberForAll choice, if any.
func (r *Resolver) Remembered() (Choice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.remembered == nil {
		return 0, false
	}
	return *r.remembered, true
}

func (r *Resolver) policyChoiceLocked() (Choice, bool) {
	switch r.policy {
	case ActionOverwrite:
		return ChooseOverwrite, true
	case ActionSkip:
		return ChooseSkip, true
	case ActionRename:
		return ChooseRename, true
	}
	if r.remembered != nil {
		return *r.remembered, true
	}
	return 0, false
}

func (r *Resolver) applyLocked(choice Choice, path string) Outcome {
	out := Outcome{Choice: choice, Path: path, Existed: true}
	switch choice {
	case ChooseRename:
		out.Path = NextAvailableName(path, r.takenLocked)
		r.claimLocked(out.Path)
	}
	return out
}

func (r *Resolver) claimLocked(path string) {
	r.claimed[path] = &claim{released: make(chan struct{})}
}

// heldLocked returns the release channel of a claim still owned by a job,
// or nil when path is free to write.
func (r *Resolver) heldLocked(path string) <-chan struct{} {
	if c, ok := r.claimed[path]; ok && !c.done {
		return c.released
	}
	return nil
}

func (r *Resolver) takenLocked(path string) bool {
	if _, ok := r.claimed[path]; ok {
		return true
	}
	return r.exists(path)
}

// NextAvailableName returns the first "stem (N).ext" sibling of path for
// which exists reports false.
func NextAvailableName(path string, exists func(string) bool) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, n, ext))
		if !exists(candidate) {
			return candidate
		}
	}
}
