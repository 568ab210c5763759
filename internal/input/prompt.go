// Package input reads interactive answers from the terminal.
package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	stdin  io.Reader = os.Stdin
	stderr io.Writer = os.Stderr
)

// PromptLine writes prompt to stderr and reads one line from stdin. It returns
// io.EOF when stdin closes before any input and ctx.Err() when ctx ends first.
func PromptLine(ctx context.Context, prompt string) (string, error) {
	return promptLine(ctx, stdin, stderr, prompt)
}

func promptLine(ctx context.Context, r io.Reader, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	type result struct {
		line string
		err  error
	}

	ch := make(chan result, 1)

	go func() {
		line, err := bufio.NewReader(r).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}

		ch <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case res := <-ch:
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
