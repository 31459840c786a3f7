package roundtrip

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// Mode selects how strictly a Differ compares lines.
type Mode int

const (
	// ModeExact compares lines byte for byte.
	ModeExact Mode = iota
	// ModeIgnoreWhitespace ignores all whitespace inside lines and blank
	// lines entirely.
	ModeIgnoreWhitespace
)

// Differ produces the diff lines between two texts. An empty result means
// the texts are equal under mode.
type Differ interface {
	Diff(ctx context.Context, a, b string, mode Mode) ([]string, error)
}

// LineDiffer is the in-process unified line differ.
type LineDiffer struct{}

// Diff implements Differ.
func (LineDiffer) Diff(ctx context.Context, a, b string, mode Mode) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if mode == ModeIgnoreWhitespace {
		a, b = stripWhitespace(a), stripWhitespace(b)
	}
	if a == b {
		return nil, nil
	}
	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "original",
		ToFile:   "reverted",
		Context:  0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to diff: %w", err)
	}
	return nonEmptyLines(out), nil
}

// stripWhitespace removes every whitespace rune from each line and drops
// lines left empty.
func stripWhitespace(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		stripped := strings.Map(func(r rune) rune {
			if unicode.IsSpace(r) {
				return -1
			}
			return r
		}, line)
		if stripped != "" {
			out = append(out, stripped)
		}
	}
	return strings.Join(out, "\n")
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// GitDiffer runs `git diff --no-index` over temporary files.
type GitDiffer struct {
	// Binary is the git executable. Empty means "git" from PATH.
	Binary string
	// TempDir is where the compared files are written. Empty means the
	// system temp directory.
	TempDir string
}

// Diff implements Differ. Exit status 1 means the files differ; any other
// failure, or anything written to stderr, is an error.
func (g GitDiffer) Diff(ctx context.Context, a, b string, mode Mode) ([]string, error) {
	dir, err := os.MkdirTemp(g.TempDir, "obosync-diff-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create diff directory: %w", err)
	}
	defer os.RemoveAll(dir)

	pathA := filepath.Join(dir, "original.obo")
	pathB := filepath.Join(dir, "reverted.obo")
	if err := os.WriteFile(pathA, []byte(a), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", pathA, err)
	}
	if err := os.WriteFile(pathB, []byte(b), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", pathB, err)
	}

	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	args := []string{"diff", "--no-index", "--no-color"}
	if mode == ModeIgnoreWhitespace {
		args = append(args, "--ignore-all-space", "--ignore-blank-lines")
	}
	args = append(args, pathA, pathB)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if stderr.Len() > 0 {
		return nil, fmt.Errorf("git diff: %s", strings.TrimSpace(stderr.String()))
	}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok || exitErr.ExitCode() != 1 {
			return nil, fmt.Errorf("git diff: %w", err)
		}
	}
	return nonEmptyLines(stdout.String()), nil
}
