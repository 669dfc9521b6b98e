package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// browseAction is one parsed interactive browser command.
type browseAction int

const (
	actionInvalid browseAction = iota
	actionNext
	actionPrev
	actionRefresh
	actionFilter
	actionClear
	actionApply
	actionHelp
	actionQuit
)

type browseCommand struct {
	action browseAction
	field  string
	value  string
}

// parseBrowseCommand reads one line typed at the browser prompt.
// Filters take the form "f field=value"; an empty value clears the field.
func parseBrowseCommand(line string) (browseCommand, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return browseCommand{action: actionRefresh}, nil
	}

	word, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(word) {
	case "n", "next":
		return browseCommand{action: actionNext}, nil
	case "p", "prev":
		return browseCommand{action: actionPrev}, nil
	case "r", "refresh":
		return browseCommand{action: actionRefresh}, nil
	case "c", "clear":
		return browseCommand{action: actionClear}, nil
	case "a", "apply":
		return browseCommand{action: actionApply}, nil
	case "h", "help", "?":
		return browseCommand{action: actionHelp}, nil
	case "q", "quit", "exit":
		return browseCommand{action: actionQuit}, nil
	case "f", "filter":
		field, value, ok := strings.Cut(strings.TrimSpace(rest), "=")
		if !ok || strings.TrimSpace(field) == "" {
			return browseCommand{}, errors.New("usage: f field=value")
		}
		return browseCommand{
			action: actionFilter,
			field:  strings.ToLower(strings.TrimSpace(field)),
			value:  strings.TrimSpace(value),
		}, nil
	}
	return browseCommand{}, fmt.Errorf("unknown command %q (h for help)", word)
}

// pageView is what the interactive loop drives.
type pageView interface {
	next(ctx context.Context) bool
	prev(ctx context.Context) bool
	refresh(ctx context.Context)
	apply(ctx context.Context)
	wait()
	setFilter(field, value string) error
	clear()
	render(w io.Writer)
	pending() string
}

const browseHelp = `Commands: n next, p prev, r refresh, f field=value, c clear filters, a apply, q quit`

// runInteractive renders the current page and then reads commands until
// quit, end of input or cancellation.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, v pageView) error {
	v.render(out)
	fmt.Fprintln(out, browseHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cmd, err := parseBrowseCommand(scanner.Text())
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}

		switch cmd.action {
		case actionQuit:
			return nil
		case actionHelp:
			fmt.Fprintln(out, browseHelp)
			continue
		case actionNext:
			if !v.next(ctx) {
				fmt.Fprintln(out, "Already on the last page.")
				continue
			}
		case actionPrev:
			if !v.prev(ctx) {
				fmt.Fprintln(out, "Already on the first page.")
				continue
			}
		case actionRefresh:
			v.refresh(ctx)
		case actionApply:
			v.apply(ctx)
		case actionClear:
			v.clear()
			fmt.Fprintf(out, "Staged filters: %s (a to apply)\n", v.pending())
			continue
		case actionFilter:
			if err := v.setFilter(cmd.field, cmd.value); err != nil {
				fmt.Fprintln(out, err)
				continue
			}
			fmt.Fprintf(out, "Staged filters: %s (a to apply)\n", v.pending())
			continue
		}

		v.wait()
		v.render(out)
	}
}
