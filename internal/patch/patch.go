// Package patch parses and applies unified diffs to single files. Application
// is atomic per call: every hunk is verified against the current content
// before anything is written, and a failed hunk leaves the file untouched.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// Hunk is one @@ block of a unified diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Line is a single diff line with its leading marker stripped.
type Line struct {
	Op   byte // ' ', '-', '+'
	Text string
}

// Parse extracts hunks from a unified diff. File headers (---/+++), index
// lines, and "\ No newline" markers are tolerated and skipped.
func Parse(diff string) ([]Hunk, error) {
	var hunks []Hunk
	var cur *Hunk
	for _, raw := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(raw, "@@"):
			h, err := parseHeader(raw)
			if err != nil {
				return nil, err
			}
			hunks = append(hunks, h)
			cur = &hunks[len(hunks)-1]
		case cur == nil:
			// Preamble: ---/+++ headers, diff --git lines, commentary.
			continue
		case strings.HasPrefix(raw, "\\"):
			continue
		case raw == "" && cur != nil:
			// Trailing blank line after the last hunk; a context blank line
			// inside a hunk arrives as a single space, not an empty string.
			continue
		case raw[0] == ' ' || raw[0] == '-' || raw[0] == '+':
			cur.Lines = append(cur.Lines, Line{Op: raw[0], Text: raw[1:]})
		default:
			return nil, fmt.Errorf("%w: unexpected diff line %q", models.ErrValidation, raw)
		}
	}
	if len(hunks) == 0 {
		return nil, fmt.Errorf("%w: no hunks found in diff", models.ErrValidation)
	}
	return hunks, nil
}

func parseHeader(s string) (Hunk, error) {
	// @@ -oldStart[,oldCount] +newStart[,newCount] @@
	parts := strings.Fields(s)
	if len(parts) < 3 || !strings.HasPrefix(parts[1], "-") || !strings.HasPrefix(parts[2], "+") {
		return Hunk{}, fmt.Errorf("%w: malformed hunk header %q", models.ErrValidation, s)
	}
	os_, oc, err := parseRange(parts[1][1:])
	if err != nil {
		return Hunk{}, fmt.Errorf("%w: malformed hunk header %q", models.ErrValidation, s)
	}
	ns, nc, err := parseRange(parts[2][1:])
	if err != nil {
		return Hunk{}, fmt.Errorf("%w: malformed hunk header %q", models.ErrValidation, s)
	}
	return Hunk{OldStart: os_, OldCount: oc, NewStart: ns, NewCount: nc}, nil
}

func parseRange(s string) (start, count int, err error) {
	count = 1
	if i := strings.IndexByte(s, ','); i >= 0 {
		if count, err = strconv.Atoi(s[i+1:]); err != nil {
			return 0, 0, err
		}
		s = s[:i]
	}
	start, err = strconv.Atoi(s)
	return start, count, err
}

// Apply patches content with the given hunks and returns the new content.
// Hunks must apply in order; each is located at its stated position first and
// then by scanning for a unique match of its before-image. A hunk whose
// before-image cannot be found fails the whole call with ErrDiffConflict.
func Apply(content string, hunks []Hunk) (string, error) {
	lines := splitLines(content)
	// offset tracks line drift introduced by earlier hunks.
	offset := 0
	for i, h := range hunks {
		before, after := images(h)
		pos := h.OldStart - 1 + offset
		if h.OldCount == 0 {
			// Pure insertion: OldStart is the line after which to insert.
			pos = h.OldStart + offset
		}
		at, ok := locate(lines, before, pos)
		if !ok {
			return "", fmt.Errorf("%w: hunk %d (@@ -%d,%d +%d,%d @@) does not match target",
				models.ErrDiffConflict, i+1, h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		}
		updated := make([]string, 0, len(lines)-len(before)+len(after))
		updated = append(updated, lines[:at]...)
		updated = append(updated, after...)
		updated = append(updated, lines[at+len(before):]...)
		lines = updated
		offset += len(after) - len(before) + (at - pos) // carry any drift found by scanning
	}
	return joinLines(lines, strings.HasSuffix(content, "\n") || content == ""), nil
}

// ApplyToFile reads filepath_, applies the diff, and writes the result via a
// temp file and rename. A missing file is treated as empty, so a diff that
// only adds lines creates it.
func ApplyToFile(path, diff string) error {
	hunks, err := Parse(diff)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read %s: %w", path, err)
	}
	existed := err == nil
	out, err := Apply(string(data), hunks)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if !existed {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create parent dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".patch-*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if _, err := tmp.WriteString(out); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if existed {
		if info, err := os.Stat(path); err == nil {
			os.Chmod(tmp.Name(), info.Mode())
		}
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// images returns the before (context + deletions) and after (context +
// additions) line sets of a hunk.
func images(h Hunk) (before, after []string) {
	for _, l := range h.Lines {
		switch l.Op {
		case ' ':
			before = append(before, l.Text)
			after = append(after, l.Text)
		case '-':
			before = append(before, l.Text)
		case '+':
			after = append(after, l.Text)
		}
	}
	return before, after
}

// locate finds where before matches in lines, preferring the stated position,
// then scanning outward for a unique match.
func locate(lines, before []string, want int) (int, bool) {
	if len(before) == 0 {
		if want < 0 {
			want = 0
		}
		if want > len(lines) {
			want = len(lines)
		}
		return want, true
	}
	if matchAt(lines, before, want) {
		return want, true
	}
	found := -1
	for i := 0; i+len(before) <= len(lines); i++ {
		if matchAt(lines, before, i) {
			if found >= 0 {
				return 0, false // ambiguous
			}
			found = i
		}
	}
	if found < 0 {
		return 0, false
	}
	return found, true
}

func matchAt(lines, before []string, at int) bool {
	if at < 0 || at+len(before) > len(lines) {
		return false
	}
	for i, b := range before {
		if lines[at+i] != b {
			return false
		}
	}
	return true
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	return strings.Split(s, "\n")
}

func joinLines(lines []string, trailingNewline bool) string {
	out := strings.Join(lines, "\n")
	if trailingNewline && out != "" {
		out += "\n"
	}
	return out
}
