package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// TerminalPrompter reads the confirmation phrase from an interactive
// stream, usually stdin. The read happens on its own goroutine so the wait
// can be cut short by the deadline or by context cancellation (Ctrl-C) -
// both of which the gate turns into a denial.
type TerminalPrompter struct {
	In  io.Reader
	Out io.Writer
}

type promptResult struct {
	line string
	at   time.Time
	err  error
}

// Confirm writes the prompt and waits for one line of input. It returns
// whatever arrived and when it arrived; judging the input against the
// phrase and the deadline is the gate's job, not the prompter's.
//
// On timeout the returned receivedAt equals the deadline, which the gate's
// strictly-before rule rejects. On cancellation an error is returned.
func (p *TerminalPrompter) Confirm(ctx context.Context, prompt string, deadline time.Time) (string, time.Time, error) {
	if _, err := fmt.Fprint(p.Out, prompt); err != nil {
		return "", time.Time{}, fmt.Errorf("writing confirmation prompt: %w", err)
	}

	results := make(chan promptResult, 1)
	go func() {
		reader := bufio.NewReader(p.In)
		line, err := reader.ReadString('\n')
		results <- promptResult{
			line: strings.TrimRight(line, "\r\n"),
			at:   time.Now(),
			err:  err,
		}
	}()

	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case res := <-results:
		if res.err != nil && res.line == "" {
			// EOF or read failure with no usable input.
			return "", res.at, fmt.Errorf("reading confirmation input: %w", res.err)
		}
		return res.line, res.at, nil
	case <-timer.C:
		fmt.Fprintln(p.Out)
		return "", deadline, nil
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		return "", time.Now(), ctx.Err()
	}
}
