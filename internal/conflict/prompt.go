package conflict

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// StaticPrompter answers every conflict with the same decision and never
// blocks. It serves non-interactive runs.
type StaticPrompter struct {
	Decision Decision
}

func (s StaticPrompter) Prompt(ctx context.Context, path string) (Decision, error) {
	return s.Decision, nil
}

// TerminalPrompter asks on Out and reads one-letter answers from its input.
// A single goroutine owns the input, so a prompt abandoned by cancellation
// never races a later one and its answer is kept for the next question.
type TerminalPrompter struct {
	Out io.Writer

	in    *bufio.Reader
	start sync.Once
	lines chan string
	err   error // set before lines is closed
}

// NewTerminalPrompter reads answers from in and writes questions to out.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{Out: out, in: bufio.NewReader(in), lines: make(chan string)}
}

var answers = map[string]Decision{
	"y": Overwrite, "yes": Overwrite,
	"n": Skip, "no": Skip,
	"a": OverwriteAll, "all": OverwriteAll,
	"r": Rename, "rename": Rename,
	"q": Abort, "quit": Abort,
}

// Prompt repeats the question until it gets a recognized answer. End of input
// counts as Skip so a closed stdin never blocks or overwrites.
func (tp *TerminalPrompter) Prompt(ctx context.Context, path string) (Decision, error) {
	for {
		fmt.Fprintf(tp.Out, "%s already exists. Overwrite? [y]es/[n]o/[a]ll/[r]ename/[q]uit: ", path)

		line, err := tp.readLine(ctx)
		if err == io.EOF {
			fmt.Fprintln(tp.Out)
			return Skip, nil
		}
		if err != nil {
			return Skip, err
		}
		if d, ok := answers[strings.ToLower(strings.TrimSpace(line))]; ok {
			return d, nil
		}
		fmt.Fprintln(tp.Out, "Please answer y, n, a, r or q.")
	}
}

func (tp *TerminalPrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tp.start.Do(func() { go tp.readLoop() })

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-tp.lines:
		if !ok {
			return "", tp.err
		}
		return line, nil
	}
}

// readLoop hands input lines to readLine until the input fails.
func (tp *TerminalPrompter) readLoop() {
	defer close(tp.lines)
	for {
		line, err := tp.in.ReadString('\n')
		if line != "" {
			tp.lines <- line
		}
		if err != nil {
			tp.err = err
			return
		}
	}
}

// NewPrompter builds the prompter for a configured policy name: "ask" prompts
// on the terminal when in is one and otherwise skips; any other name is a fixed
// decision.
func NewPrompter(policy string, in *os.File, out io.Writer) (Prompter, error) {
	if strings.EqualFold(policy, "ask") || policy == "" {
		if in != nil && (isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())) {
			return NewTerminalPrompter(in, out), nil
		}
		return StaticPrompter{Decision: Skip}, nil
	}
	d, err := ParseDecision(policy)
	if err != nil {
		return nil, err
	}
	return StaticPrompter{Decision: d}, nil
}
