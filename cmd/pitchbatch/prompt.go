package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"pitchbatch/internal/conflict"
)

const promptText = "[o]verwrite, [s]kip, [r]ename, [c]ancel run (capital letter applies to all): "

// promptAsker asks on a terminal what to do with an existing destination.
// A single reader goroutine owns the input; a cancelled prompt leaves any
// line typed later for the next prompt.
type promptAsker struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	once  sync.Once
	lines chan lineResult
}

func newPromptAsker(in io.Reader, out io.Writer) *promptAsker {
	return &promptAsker{in: bufio.NewReader(in), out: out, lines: make(chan lineResult)}
}

type lineResult struct {
	line string
	err  error
}

func (p *promptAsker) AskFileAction(ctx context.Context, path string) (conflict.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "\nDestination exists: %s\n", path)
	for {
		fmt.Fprint(p.out, promptText)
		line, err := p.readLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return conflict.Decision{Choice: conflict.ChooseCancel}, nil
			}
			return conflict.Decision{}, err
		}
		if decision, ok := parseDecision(line); ok {
			return decision, nil
		}
		fmt.Fprintf(p.out, "Unrecognized answer %q\n", strings.TrimSpace(line))
	}
}

func (p *promptAsker) readLine(ctx context.Context) (string, error) {
	p.once.Do(func() { go p.readLoop() })
	select {
	case r, ok := <-p.lines:
		if !ok {
			return "", io.EOF
		}
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// readLoop feeds lines until the input fails, then closes lines.
func (p *promptAsker) readLoop() {
	defer close(p.lines)
	for {
		line, err := p.in.ReadString('\n')
		if err != nil && line != "" && errors.Is(err, io.EOF) {
			err = nil
		}
		p.lines <- lineResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

// parseDecision maps a typed answer to a decision. A capitalized letter or a
// trailing " all" remembers the choice for the rest of the run.
func parseDecision(line string) (conflict.Decision, bool) {
	answer := strings.TrimSpace(line)
	if answer == "" {
		return conflict.Decision{}, false
	}
	remember := false
	if lower := strings.ToLower(answer); strings.HasSuffix(lower, " all") {
		remember = true
		answer = strings.TrimSpace(answer[:len(answer)-len(" all")])
	}
	if len(answer) == 1 && answer != strings.ToLower(answer) {
		remember = true
	}

	var choice conflict.Choice
	switch strings.ToLower(answer) {
	case "o", "overwrite":
		choice = conflict.ChooseOverwrite
	case "s", "skip":
		choice = conflict.ChooseSkip
	case "r", "rename":
		choice = conflict.ChooseRename
	case "c", "cancel":
		return conflict.Decision{Choice: conflict.ChooseCancel}, true
	default:
		return conflict.Decision{}, false
	}
	return conflict.Decision{Choice: choice, RememberForAll: remember}, true
}
