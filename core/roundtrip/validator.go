// Package roundtrip verifies that serializing a parsed OBO file reproduces
// the original text.
//
// Three comparisons run in order of strictness and the first that passes
// decides the result: an exact line diff, a diff that ignores whitespace
// and blank lines, and finally a comparison of the sets of content lines.
package roundtrip

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/obosync/core/errors"
	"github.com/FocuswithJustin/obosync/internal/logging"
)

// ReportVersion is the report format version.
const ReportVersion = "1.0.0"

// Status values for reports.
const (
	StatusPass = "pass"
	StatusFail = "fail"
)

// Strategy names.
const (
	StrategyExact      = "EXACT"
	StrategyWhitespace = "WHITESPACE"
	StrategySemantic   = "SEMANTIC"
)

// maxSample bounds the diff lines and set differences kept in a report.
const maxSample = 20

// StepResult is the outcome of one comparison strategy.
type StepResult struct {
	Strategy  string   `json:"strategy"`
	Pass      bool     `json:"pass"`
	DiffLines int      `json:"diff_lines,omitempty"`
	Sample    []string `json:"sample,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	Extra     []string `json:"extra,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Report is the output of a round-trip check.
type Report struct {
	ReportVersion string       `json:"report_version"`
	ID            string       `json:"id"`
	CreatedAt     string       `json:"created_at"`
	Status        string       `json:"status"`
	Strategy      string       `json:"strategy,omitempty"`
	LossClass     LossClass    `json:"loss_class"`
	Steps         []StepResult `json:"steps"`
}

// Passed reports whether any strategy succeeded.
func (r *Report) Passed() bool {
	return r.Status == StatusPass
}

// Err returns nil for a passing report and a RoundtripError otherwise.
func (r *Report) Err(path string) error {
	if r.Passed() {
		return nil
	}
	last := ""
	var cause error
	if n := len(r.Steps); n > 0 {
		last = r.Steps[n-1].Strategy
		if msg := r.Steps[n-1].Error; msg != "" {
			cause = errors.NewValidation("roundtrip", msg)
		}
	}
	return errors.NewRoundtrip(path, last, cause)
}

// ToJSON serializes the report to JSON.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Validator runs round-trip checks.
type Validator struct {
	differ Differ
}

// Option configures a Validator.
type Option func(*Validator)

// WithDiffer replaces the default in-process differ.
func WithDiffer(d Differ) Option {
	return func(v *Validator) {
		v.differ = d
	}
}

// NewValidator returns a validator using LineDiffer unless overridden.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{differ: LineDiffer{}}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateRoundtrip reports whether reverted is an acceptable reproduction
// of original using the in-process differ.
func ValidateRoundtrip(original, reverted string) bool {
	return NewValidator().Validate(context.Background(), original, reverted).Passed()
}

// Validate runs the strategies in order and stops at the first success. A
// differ error fails the check without trying weaker strategies.
func (v *Validator) Validate(ctx context.Context, original, reverted string) *Report {
	report := &Report{
		ReportVersion: ReportVersion,
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Status:        StatusFail,
		LossClass:     LossL3,
	}

	steps := []struct {
		name  string
		class LossClass
		run   func() StepResult
	}{
		{StrategyExact, LossL0, func() StepResult { return v.diffStep(ctx, StrategyExact, original, reverted, ModeExact) }},
		{StrategyWhitespace, LossL1, func() StepResult { return v.diffStep(ctx, StrategyWhitespace, original, reverted, ModeIgnoreWhitespace) }},
		{StrategySemantic, LossL2, func() StepResult { return semanticStep(original, reverted) }},
	}

	for _, s := range steps {
		res := s.run()
		report.Steps = append(report.Steps, res)
		logging.RoundtripStep(ctx, s.name, res.Pass,
			"diff_lines", res.DiffLines,
			"missing", len(res.Missing),
			"extra", len(res.Extra),
		)
		if res.Pass {
			report.Status = StatusPass
			report.Strategy = s.name
			report.LossClass = s.class
			return report
		}
		if res.Error != "" {
			logging.WarnContext(ctx, "roundtrip comparison failed", "strategy", s.name, "error", res.Error)
			return report
		}
	}
	return report
}

func (v *Validator) diffStep(ctx context.Context, name, a, b string, mode Mode) StepResult {
	lines, err := v.differ.Diff(ctx, a, b, mode)
	if err != nil {
		return StepResult{Strategy: name, Error: err.Error()}
	}
	return StepResult{
		Strategy:  name,
		Pass:      len(lines) == 0,
		DiffLines: len(lines),
		Sample:    head(lines, maxSample),
	}
}

func semanticStep(a, b string) StepResult {
	sa, sb := SemanticLines(a), SemanticLines(b)
	missing := setDiff(sa, sb)
	extra := setDiff(sb, sa)
	return StepResult{
		Strategy: StrategySemantic,
		Pass:     len(missing) == 0 && len(extra) == 0,
		Missing:  head(missing, maxSample),
		Extra:    head(extra, maxSample),
	}
}

// SemanticLines returns the set of content lines of text: non-blank lines
// that are not "!" comments, trimmed, with whitespace runs collapsed to one
// space.
func SemanticLines(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "!") {
			continue
		}
		set[strings.Join(strings.Fields(trimmed), " ")] = struct{}{}
	}
	return set
}

func setDiff(a, b map[string]struct{}) []string {
	var out []string
	for k := range a {
		if _, ok := b[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

func head(lines []string, n int) []string {
	if len(lines) > n {
		return lines[:n]
	}
	return lines
}
