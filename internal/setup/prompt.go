// Package setup implements the interactive first-run wizard that writes the
// offsync configuration file.
package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// errNoInput is returned when the input stream ends mid-prompt.
var errNoInput = errors.New("no input")

// Prompter provides reusable terminal prompts backed by an io.Reader/Writer
// pair. In production these are os.Stdin and os.Stdout; tests inject
// buffers for deterministic input.
type Prompter struct {
	scanner *bufio.Scanner
	w       io.Writer
}

// NewPrompter creates a Prompter wired to the given reader and writer.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(r), w: w}
}

// line prints the prompt and reads one trimmed line.
func (p *Prompter) line(prompt string) (string, bool) {
	_, _ = fmt.Fprint(p.w, prompt)
	if !p.scanner.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.scanner.Text()), true
}

// String prompts for a text value. Enter alone returns defaultVal; with an
// empty defaultVal the prompt repeats until something is typed. At end of
// input defaultVal is returned.
func (p *Prompter) String(label, defaultVal string) string {
	prompt := fmt.Sprintf("  %s: ", label)
	if defaultVal != "" {
		prompt = fmt.Sprintf("  %s [%s]: ", label, defaultVal)
	}
	for {
		val, ok := p.line(prompt)
		if !ok {
			return defaultVal
		}
		if val != "" {
			return val
		}
		if defaultVal != "" {
			return defaultVal
		}
		_, _ = fmt.Fprintln(p.w, "  (required, please enter a value)")
	}
}

// Secret prompts for a sensitive value such as a token. An empty answer is
// allowed only when optional is set. Input is not masked.
func (p *Prompter) Secret(label string, optional bool) string {
	prompt := fmt.Sprintf("  %s: ", label)
	if optional {
		prompt = fmt.Sprintf("  %s (optional): ", label)
	}
	for {
		val, ok := p.line(prompt)
		if !ok || val != "" || optional {
			return val
		}
		_, _ = fmt.Fprintln(p.w, "  (required, please enter a value)")
	}
}

// Confirm asks a yes/no question. defaultYes decides what Enter alone means.
func (p *Prompter) Confirm(label string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	answer, ok := p.line(fmt.Sprintf("  %s %s: ", label, hint))
	if !ok || answer == "" {
		return defaultYes
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

// Duration prompts for a duration between lo and hi. Invalid answers are
// explained and asked again.
func (p *Prompter) Duration(label string, defaultVal, lo, hi time.Duration) time.Duration {
	for {
		val, ok := p.line(fmt.Sprintf("  %s (%v to %v) [%v]: ", label, lo, hi, defaultVal))
		if !ok || val == "" {
			return defaultVal
		}
		d, err := time.ParseDuration(val)
		if err != nil || d < lo || d > hi {
			_, _ = fmt.Fprintf(p.w, "  (enter a duration between %v and %v, e.g. 30s)\n", lo, hi)
			continue
		}
		return d
	}
}

// MultiSelect lists options and reads a comma-separated choice such as
// "1,3". Enter alone or "all" selects everything. Returns zero-based
// indices in the order given.
func (p *Prompter) MultiSelect(label string, options []string) ([]int, error) {
	if len(options) == 0 {
		return nil, errors.New("no options to select from")
	}

	_, _ = fmt.Fprintf(p.w, "  %s:\n", label)
	for i, opt := range options {
		_, _ = fmt.Fprintf(p.w, "    %d) %s\n", i+1, opt)
	}

	for {
		val, ok := p.line("  Choices (comma-separated, Enter for all): ")
		if !ok {
			return nil, errNoInput
		}
		if val == "" || strings.EqualFold(val, "all") {
			all := make([]int, len(options))
			for i := range all {
				all[i] = i
			}
			return all, nil
		}

		indices, err := parseChoices(val, len(options))
		if err != nil {
			_, _ = fmt.Fprintf(p.w, "  (%v)\n", err)
			continue
		}
		return indices, nil
	}
}

func parseChoices(val string, n int) ([]int, error) {
	seen := make(map[int]bool)
	var out []int
	for _, part := range strings.Split(val, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("enter numbers between 1 and %d, separated by commas", n)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i-1)
		}
	}
	return out, nil
}
