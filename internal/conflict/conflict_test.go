package conflict

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDisk map[string]bool

func (d fakeDisk) exists(path string) bool { return d[path] }

type countingAsker struct {
	calls    atomic.Int32
	decision Decision
	err      error
}

func (a *countingAsker) AskFileAction(context.Context, string) (Decision, error) {
	a.calls.Add(1)
	return a.decision, a.err
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"ask", "Overwrite", " SKIP ", "rename"} {
		if _, err := ParseAction(in); err != nil {
			t.Fatalf("ParseAction(%q): %v", in, err)
		}
	}
	if _, err := ParseAction("merge"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestNextAvailableName(t *testing.T) {
	dir := filepath.Join("out", "album")
	disk := fakeDisk{
		filepath.Join(dir, "song.mp3"):     true,
		filepath.Join(dir, "song (1).mp3"): true,
	}
	got := NextAvailableName(filepath.Join(dir, "song.mp3"), disk.exists)
	if want := filepath.Join(dir, "song (2).mp3"); got != want {
		t.Fatalf("NextAvailableName = %q, want %q", got, want)
	}
	if got := NextAvailableName("noext", fakeDisk{}.exists); got != "noext (1)" {
		t.Fatalf("NextAvailableName without extension = %q", got)
	}
}

func TestResolveFreeDestinationNeverAsks(t *testing.T) {
	asker := &countingAsker{decision: Decision{Choice: ChooseSkip}}
	r := mustResolver(t, ActionAsk, asker, fakeDisk{})
	out, err := r.Resolve(context.Background(), "/out/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if out.Choice != ChooseOverwrite || out.Existed || out.Path != "/out/a.mp3" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if asker.calls.Load() != 0 {
		t.Fatalf("asker called for free destination")
	}
}

func TestResolvePolicies(t *testing.T) {
	disk := fakeDisk{"/out/a.mp3": true}
	tests := []struct {
		policy Action
		choice Choice
		path   string
	}{
		{ActionOverwrite, ChooseOverwrite, "/out/a.mp3"},
		{ActionSkip, ChooseSkip, "/out/a.mp3"},
		{ActionRename, ChooseRename, "/out/a (1).mp3"},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			asker := &countingAsker{}
			r := mustResolver(t, tt.policy, asker, disk)
			out, err := r.Resolve(context.Background(), "/out/a.mp3")
			if err != nil {
				t.Fatal(err)
			}
			if out.Choice != tt.choice || out.Path != tt.path || !out.Existed {
				t.Fatalf("unexpected outcome %+v", out)
			}
			if asker.calls.Load() != 0 {
				t.Fatalf("asker called under policy %s", tt.policy)
			}
		})
	}
}

func TestResolveRenameAvoidsClaimedNames(t *testing.T) {
	r := mustResolver(t, ActionRename, nil, fakeDisk{"/out/a.mp3": true})
	first, _ := r.Resolve(context.Background(), "/out/a.mp3")
	second, _ := r.Resolve(context.Background(), "/out/a.mp3")
	if first.Path == second.Path {
		t.Fatalf("rename produced the same path twice: %q", first.Path)
	}
	if second.Path != "/out/a (2).mp3" {
		t.Fatalf("second rename = %q", second.Path)
	}
}

func TestResolveClaimsWithinRun(t *testing.T) {
	r := mustResolver(t, ActionSkip, nil, fakeDisk{})
	first, _ := r.Resolve(context.Background(), "/out/a.mp3")
	second, _ := r.Resolve(context.Background(), "/out/a.mp3")
	if first.Choice != ChooseOverwrite || first.Existed {
		t.Fatalf("first job should get the free destination: %+v", first)
	}
	if second.Choice != ChooseSkip || !second.Existed {
		t.Fatalf("second job should collide with the first: %+v", second)
	}
}

func TestResolveAskPromptsOncePerConflict(t *testing.T) {
	disk := fakeDisk{"/out/a.mp3": true, "/out/b.mp3": true}
	asker := &countingAsker{decision: Decision{Choice: ChooseSkip}}
	r := mustResolver(t, ActionAsk, asker, disk)
	for _, p := range []string{"/out/a.mp3", "/out/b.mp3"} {
		out, err := r.Resolve(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		if out.Choice != ChooseSkip {
			t.Fatalf("unexpected choice %v", out.Choice)
		}
	}
	if asker.calls.Load() != 2 {
		t.Fatalf("asker calls = %d, want 2", asker.calls.Load())
	}
}

func TestResolveRememberForAll(t *testing.T) {
	disk := fakeDisk{"/out/a.mp3": true, "/out/b.mp3": true, "/out/c.mp3": true}
	asker := &countingAsker{decision: Decision{Choice: ChooseOverwrite, RememberForAll: true}}
	r := mustResolver(t, ActionAsk, asker, disk)

	var wg sync.WaitGroup
	for _, p := range []string{"/out/a.mp3", "/out/b.mp3", "/out/c.mp3"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			out, err := r.Resolve(context.Background(), p)
			if err != nil {
				t.Error(err)
				return
			}
			if out.Choice != ChooseOverwrite {
				t.Errorf("unexpected choice %v for %s", out.Choice, p)
			}
		}(p)
	}
	wg.Wait()
	if asker.calls.Load() != 1 {
		t.Fatalf("asker calls = %d, want 1", asker.calls.Load())
	}
	if c, ok := r.Remembered(); !ok || c != ChooseOverwrite {
		t.Fatalf("Remembered = %v, %v", c, ok)
	}
}

func TestResolveCancelIsNotRemembered(t *testing.T) {
	asker := &countingAsker{decision: Decision{Choice: ChooseCancel, RememberForAll: true}}
	r := mustResolver(t, ActionAsk, asker, fakeDisk{"/out/a.mp3": true})
	out, err := r.Resolve(context.Background(), "/out/a.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if out.Choice != ChooseCancel {
		t.Fatalf("choice = %v, want cancel", out.Choice)
	}
	if _, ok := r.Remembered(); ok {
		t.Fatal("cancel must not be remembered")
	}
}

func TestResolveAskError(t *testing.T) {
	asker := &countingAsker{err: errors.New("dialog closed")}
	r := mustResolver(t, ActionAsk, asker, fakeDisk{"/out/a.mp3": true})
	if _, err := r.Resolve(context.Background(), "/out/a.mp3"); err == nil {
		t.Fatal("expected asker error to propagate")
	}
}

func TestResolveAskCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	asker := AskerFunc(func(ctx context.Context, _ string) (Decision, error) {
		cancel()
		<-ctx.Done()
		return Decision{}, ctx.Err()
	})
	r := mustResolver(t, ActionAsk, asker, fakeDisk{"/out/a.mp3": true})
	out, err := r.Resolve(ctx, "/out/a.mp3")
	if err != nil {
		t.Fatalf("expected cancellation to resolve without error, got %v", err)
	}
	if out.Choice != ChooseCancel {
		t.Fatalf("choice = %v, want cancel", out.Choice)
	}
}

func TestResolveOverwriteWaitsForOwner(t *testing.T) {
	r := mustResolver(t, ActionOverwrite, nil, fakeDisk{})
	first, _ := r.Resolve(context.Background(), "/out/a.mp3")
	if first.Choice != ChooseOverwrite || first.Existed {
		t.Fatalf("unexpected first outcome %+v", first)
	}

	done := make(chan Outcome, 1)
	go func() {
		out, _ := r.Resolve(context.Background(), "/out/a.mp3")
		done <- out
	}()
	select {
	case out := <-done:
		t.Fatalf("second writer resolved while the first still owns the path: %+v", out)
	case <-time.After(50 * time.Millisecond):
	}

	r.Release(first.Path)
	select {
	case out := <-done:
		if out.Choice != ChooseOverwrite || !out.Existed || out.Path != "/out/a.mp3" {
			t.Fatalf("unexpected second outcome %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second writer never resolved after release")
	}
}

func TestResolveOverwriteWaitCancelled(t *testing.T) {
	r := mustResolver(t, ActionOverwrite, nil, fakeDisk{})
	if _, err := r.Resolve(context.Background(), "/out/a.mp3"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)
	out, err := r.Resolve(ctx, "/out/a.mp3")
	if err != nil || out.Choice != ChooseCancel {
		t.Fatalf("expected cancel while waiting, got %+v %v", out, err)
	}
}

func TestReleaseUnknownPathIsNoop(t *testing.T) {
	r := mustResolver(t, ActionSkip, nil, fakeDisk{})
	r.Release("/out/none.mp3")
	out, _ := r.Resolve(context.Background(), "/out/a.mp3")
	r.Release(out.Path)
	r.Release(out.Path)
}

func TestResolveCancelledContextSkipsPrompt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	asker := &countingAsker{decision: Decision{Choice: ChooseOverwrite}}
	r := mustResolver(t, ActionAsk, asker, fakeDisk{"/out/a.mp3": true})
	out, err := r.Resolve(ctx, "/out/a.mp3")
	if err != nil || out.Choice != ChooseCancel {
		t.Fatalf("expected cancel, got %+v %v", out, err)
	}
	if asker.calls.Load() != 0 {
		t.Fatalf("asker called %d times after cancel", asker.calls.Load())
	}
}

func TestNewResolverValidation(t *testing.T) {
	if _, err := NewResolver(ActionAsk, nil, fakeDisk{}.exists); err == nil {
		t.Fatal("expected error for ask without asker")
	}
	if _, err := NewResolver("merge", nil, fakeDisk{}.exists); err == nil {
		t.Fatal("expected error for unknown policy")
	}
	if _, err := NewResolver(ActionSkip, nil, nil); err == nil {
		t.Fatal("expected error for missing exists predicate")
	}
}

func mustResolver(t *testing.T, policy Action, asker Asker, disk fakeDisk) *Resolver {
	t.Helper()
	r, err := NewResolver(policy, asker, disk.exists)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}
