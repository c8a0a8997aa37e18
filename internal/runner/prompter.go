package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/tphakala/certmigrate/internal/mapping"
	"github.com/tphakala/certmigrate/internal/migration"
)

// Decision is the operator's answer for one record
type Decision int

const (
	DecisionMigrate Decision = iota
	DecisionSkip
	DecisionExit
)

func (d Decision) String() string {
	switch d {
	case DecisionMigrate:
		return "Migrate"
	case DecisionSkip:
		return "Skip"
	default:
		return "Exit"
	}
}

// Prompter asks the operator what to do with a record and shows the result
type Prompter interface {
	Prompt(ctx context.Context, kind mapping.Kind, rec migration.Record) (Decision, error)
	Show(out migration.Outcome)
}

// LinePrompter reads one answer per line. Empty input migrates; m, s and e
// (or the full words) select Migrate, Skip and Exit. End of input exits.
// Lines are read by a background goroutine so a cancelled context ends a
// pending prompt.
type LinePrompter struct {
	in    io.Reader
	out   io.Writer
	start sync.Once
	lines chan string
	err   error // read error, valid once lines is closed
}

// NewLinePrompter creates a prompter over a command's input and output streams
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: in, out: out, lines: make(chan string)}
}

// readLines feeds lines to p.lines until the input ends
func (p *LinePrompter) readLines() {
	defer close(p.lines)
	scanner := bufio.NewScanner(p.in)
	for scanner.Scan() {
		p.lines <- scanner.Text()
	}
	p.err = scanner.Err()
}

func (p *LinePrompter) Prompt(ctx context.Context, kind mapping.Kind, rec migration.Record) (Decision, error) {
	p.start.Do(func() { go p.readLines() })
	for {
		if err := ctx.Err(); err != nil {
			return DecisionExit, err
		}
		label := rec.Label
		if label == "" {
			label = rec.SourceID
		}
		_, _ = fmt.Fprintf(p.out, "%s %s (source id %s): [M]igrate / [s]kip / [e]xit? ", kind, label, rec.SourceID)

		var line string
		select {
		case <-ctx.Done():
			_, _ = fmt.Fprintln(p.out)
			return DecisionExit, ctx.Err()
		case l, ok := <-p.lines:
			if !ok {
				return DecisionExit, p.err
			}
			line = l
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "m", "migrate":
			return DecisionMigrate, nil
		case "s", "skip":
			return DecisionSkip, nil
		case "e", "exit", "q", "quit":
			return DecisionExit, nil
		}
		_, _ = fmt.Fprintln(p.out, "please answer m, s or e")
	}
}

func (p *LinePrompter) Show(out migration.Outcome) {
	if out.Migrated() {
		_, _ = fmt.Fprintf(p.out, "  migrated as %s\n", out.DestinationID)
		return
	}
	_, _ = fmt.Fprintf(p.out, "  %s: %s\n", out.State, strings.Join(out.Reasons(), "; "))
}
