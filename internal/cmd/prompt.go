package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/3leaps/ossbrowse/pkg/conflict"
	"github.com/3leaps/ossbrowse/pkg/deletion"
)

// terminal asks conflict and delete questions on a line-oriented terminal.
// End of input answers Cancel or No.
type terminal struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newTerminal(in io.Reader, out io.Writer) *terminal {
	return &terminal{in: bufio.NewReader(in), out: out}
}

func (t *terminal) ask(ctx context.Context, question string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprint(t.out, question)
	line, err := t.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(t.out)
		return "", io.EOF
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// Prompt implements conflict.Prompter.
func (t *terminal) Prompt(ctx context.Context, path string) (conflict.Decision, error) {
	for {
		answer, err := t.ask(ctx, fmt.Sprintf("%q already exists. [o]verwrite, [r]ename, [s]kip, [c]ancel? ", path))
		if errors.Is(err, io.EOF) {
			return conflict.Cancel, nil
		}
		if err != nil {
			return 0, err
		}
		if d, ok := parseAnswer(answer); ok {
			return d, nil
		}
		fmt.Fprintln(t.out, "Please answer o, r, s, or c.")
	}
}

func parseAnswer(answer string) (conflict.Decision, bool) {
	switch answer {
	case "o", "overwrite":
		return conflict.Overwrite, true
	case "r", "rename":
		return conflict.Rename, true
	case "s", "skip":
		return conflict.Skip, true
	case "c", "cancel":
		return conflict.Cancel, true
	}
	return 0, false
}

// ConfirmDelete implements deletion.Confirmer.
func (t *terminal) ConfirmDelete(ctx context.Context, total int) (bool, error) {
	answer, err := t.ask(ctx, fmt.Sprintf("Delete %d objects? This cannot be undone. [y/N] ", total))
	if errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "yes", nil
}

var (
	_ conflict.Prompter  = (*terminal)(nil)
	_ deletion.Confirmer = (*terminal)(nil)
)

// conflictPrompter returns the prompter for an --on-conflict value.
func conflictPrompter(mode string, term *terminal) (conflict.Prompter, error) {
	if strings.EqualFold(strings.TrimSpace(mode), "ask") {
		return term, nil
	}
	d, err := conflict.ParseDecision(mode)
	if err != nil {
		return nil, err
	}
	return conflict.Fixed(d), nil
}
