// Package ui prints human-facing CLI output with optional color.
package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/muesli/termenv"
)

type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	// Color is auto, always or never.
	Color string
}

type UI struct {
	out *Printer
	err *Printer
}

type Printer struct {
	w       io.Writer
	profile termenv.Profile
}

var errInvalidColor = errors.New("invalid --color (expected auto, always or never)")

func New(opts Options) (*UI, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}

	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	outProfile, err := profileFor(opts.Stdout, opts.Color)
	if err != nil {
		return nil, err
	}

	errProfile, err := profileFor(opts.Stderr, opts.Color)
	if err != nil {
		return nil, err
	}

	return &UI{
		out: &Printer{w: opts.Stdout, profile: outProfile},
		err: &Printer{w: opts.Stderr, profile: errProfile},
	}, nil
}

func profileFor(w io.Writer, color string) (termenv.Profile, error) {
	switch strings.ToLower(strings.TrimSpace(color)) {
	case "", "auto":
		if os.Getenv("NO_COLOR") != "" {
			return termenv.Ascii, nil
		}

		return termenv.NewOutput(w).EnvColorProfile(), nil
	case "always":
		return termenv.ANSI256, nil
	case "never":
		return termenv.Ascii, nil
	}

	return termenv.Ascii, fmt.Errorf("%w: %q", errInvalidColor, color)
}

func (u *UI) Out() *Printer { return u.out }
func (u *UI) Err() *Printer { return u.err }

func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) Println(msg string) {
	_, _ = fmt.Fprintln(p.w, msg)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) Successf(format string, args ...any) {
	p.Println(p.paint(fmt.Sprintf(format, args...), "2"))
}

func (p *Printer) Warnf(format string, args ...any) {
	p.Println(p.paint(fmt.Sprintf(format, args...), "3"))
}

func (p *Printer) Error(msg string) {
	p.Println(p.paint(msg, "1"))
}

func (p *Printer) Errorf(format string, args ...any) {
	p.Error(fmt.Sprintf(format, args...))
}

// Dim renders secondary text (ids, hints) in a faint style.
func (p *Printer) Dim(s string) string {
	if p.profile == termenv.Ascii {
		return s
	}

	return p.profile.String(s).Faint().String()
}

func (p *Printer) paint(s, ansi string) string {
	if p.profile == termenv.Ascii {
		return s
	}

	return p.profile.String(s).Foreground(p.profile.Color(ansi)).String()
}

type ctxKey struct{}

func WithUI(ctx context.Context, u *UI) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func FromContext(ctx context.Context) *UI {
	u, _ := ctx.Value(ctxKey{}).(*UI)
	return u
}
