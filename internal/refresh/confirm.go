package refresh

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Confirmer decides whether a fuzzy suggestion should replace the name the
// operator typed. Implementations may block waiting for a human.
type Confirmer interface {
	Confirm(ctx context.Context, input, suggestion string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, input, suggestion string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, input, suggestion string) (bool, error) {
	return f(ctx, input, suggestion)
}

var (
	// AutoAccept takes every suggestion. Meant for unattended runs.
	AutoAccept Confirmer = ConfirmFunc(func(context.Context, string, string) (bool, error) { return true, nil })

	// AutoReject declines every suggestion, so only exact names resolve.
	AutoReject Confirmer = ConfirmFunc(func(context.Context, string, string) (bool, error) { return false, nil })
)

// PromptConfirmer asks on Out and reads a yes/no answer from In.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptConfirmer returns a confirmer reading answers from r.
func NewPromptConfirmer(r io.Reader, w io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(r), out: w}
}

// Confirm prints the suggestion and accepts s, sim, y or yes (any case).
// Anything else, including end of input, declines.
func (p *PromptConfirmer) Confirm(ctx context.Context, input, suggestion string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "Dataset '%s' not found. Did you mean '%s'? (s/n): ", input, suggestion)

	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "s", "sim", "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ParseConfirmMode maps a mode name (prompt, accept, reject) to a Confirmer.
func ParseConfirmMode(mode string, in io.Reader, out io.Writer) (Confirmer, error) {
	switch strings.ToLower(mode) {
	case "", "prompt":
		return NewPromptConfirmer(in, out), nil
	case "accept":
		return AutoAccept, nil
	case "reject":
		return AutoReject, nil
	default:
		return nil, fmt.Errorf("invalid confirm mode: %s (use: prompt, accept, reject)", mode)
	}
}
