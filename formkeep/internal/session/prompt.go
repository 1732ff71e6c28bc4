package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks the person operating the page.
type Prompter interface {
	// Confirm asks a yes/no question.
	Confirm(ctx context.Context, message string) (bool, error)
	// Notify shows an informational message.
	Notify(ctx context.Context, message string) error
}

// Answers is a Prompter whose answers were given up front, in order. Once
// exhausted it declines.
type Answers struct {
	mu      sync.Mutex
	answers []bool
	Notices []string
}

// Answered returns a Prompter that replies with answers in order.
func Answered(answers ...bool) *Answers {
	return &Answers{answers: answers}
}

func (a *Answers) Confirm(context.Context, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.answers) == 0 {
		return false, nil
	}
	ok := a.answers[0]
	a.answers = a.answers[1:]
	return ok, nil
}

func (a *Answers) Notify(_ context.Context, message string) error {
	a.mu.Lock()
	a.Notices = append(a.Notices, message)
	a.mu.Unlock()
	return nil
}

// Chain asks every prompter in turn. A confirmation holds only when all of
// them accept; the first refusal stops the chain. Notices go to all.
func Chain(ps ...Prompter) Prompter { return chain(ps) }

type chain []Prompter

func (c chain) Confirm(ctx context.Context, message string) (bool, error) {
	for _, p := range c {
		ok, err := p.Confirm(ctx, message)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (c chain) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, p := range c {
		if err := p.Notify(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Terminal prompts on a line-oriented terminal.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal reads answers from in and writes prompts to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) Confirm(ctx context.Context, message string) (bool, error) {
	if _, err := fmt.Fprintf(t.out, "%s [y/N] ", message); err != nil {
		return false, err
	}
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := t.in.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		if r.err != nil && r.line == "" {
			if r.err == io.EOF {
				return false, nil
			}
			return false, r.err
		}
		switch strings.ToLower(strings.TrimSpace(r.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

func (t *Terminal) Notify(_ context.Context, message string) error {
	_, err := fmt.Fprintln(t.out, message)
	return err
}
