package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/card"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/policy/source"
)

var validateFlags struct {
	format string
}

var validateCmd = &cobra.Command{
	Use:   "validate <policy-file>...",
	Short: "Validate policy card files",
	Long: `Validate one or more policy card files.

Every problem in a file is reported together with its path inside the
document, for example rules[2].condition.operator. The command exits
non-zero when any file is invalid. KPI thresholds naming a metric the
report generator does not compute are listed as warnings.

Examples:
  # Validate a single card
  policycard validate policy.yaml

  # JSON output for CI/CD
  policycard validate --format json policies/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validatePolicies(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.format, "format", "text", "output format: text, json")
}

// ValidationResult is the validation outcome for one policy file.
type ValidationResult struct {
	File     string            `json:"file"`
	Valid    bool              `json:"valid"`
	Name     string            `json:"name,omitempty"`
	Version  string            `json:"version,omitempty"`
	Digest   string            `json:"digest,omitempty"`
	Rules    int               `json:"rules,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []ValidationError `json:"warnings,omitempty"`
}

// ValidationError is one problem found in a policy file.
type ValidationError struct {
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

func validatePolicies(ctx context.Context, out io.Writer, files []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if validateFlags.format != "text" && validateFlags.format != "json" {
		return cli.NewConfigError("format", fmt.Sprintf("unsupported format %q (want text or json)", validateFlags.format))
	}

	results := make([]ValidationResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		result := validatePolicyFile(ctx, file)
		if !result.Valid {
			invalid++
		}
		results = append(results, result)
	}

	var err error
	if validateFlags.format == "json" {
		err = (&cli.JSONFormatter{Indent: true}).FormatTo(out, results)
	} else {
		err = outputValidationText(out, results)
	}
	if err != nil {
		return err
	}

	if invalid > 0 {
		return cli.NewExitError(cli.ExitFailure, fmt.Sprintf("%d of %d policy files invalid", invalid, len(files)))
	}
	return nil
}

func validatePolicyFile(ctx context.Context, path string) ValidationResult {
	result := ValidationResult{File: path}

	doc, prov, err := source.NewFileSource(path, 0).Load(ctx)
	if err != nil {
		result.Errors = validationErrors(err)
		return result
	}

	result.Valid = true
	result.Name = doc.Name
	result.Version = doc.Version
	result.Digest = prov.Digest
	result.Rules = len(doc.Rules)
	result.Warnings = kpiWarnings(doc)
	return result
}

// kpiWarnings flags thresholds that would always classify as fail because
// the generator has no such metric.
func kpiWarnings(doc *card.Document) []ValidationError {
	known := report.Metrics()
	var out []ValidationError
	for i, k := range doc.KPIs {
		if slices.Contains(known, k.Metric) {
			continue
		}
		out = append(out, ValidationError{
			Type:       "kpi",
			Path:       fmt.Sprintf("%s.thresholds[%d].metric", card.KeyKPIs, i),
			Message:    fmt.Sprintf("unknown metric %q", k.Metric),
			Suggestion: "use one of " + strings.Join(known, ", "),
		})
	}
	return out
}

func validationErrors(err error) []ValidationError {
	var list *card.ErrorList
	if !errors.As(err, &list) {
		return []ValidationError{{Type: "io", Message: err.Error()}}
	}
	out := make([]ValidationError, 0, len(list.Errors))
	for _, e := range list.Errors {
		out = append(out, ValidationError{
			Type:       string(e.Type),
			Path:       e.Path,
			Message:    e.Message,
			Suggestion: e.Suggestion,
		})
	}
	return out
}

func outputValidationText(w io.Writer, results []ValidationResult) error {
	for _, r := range results {
		if r.Valid {
			fmt.Fprintf(w, "✓ %s: %s@%s (%d rules, %s)\n", r.File, r.Name, r.Version, r.Rules, r.Digest)
			writeProblems(w, "warning ", r.Warnings)
			continue
		}
		fmt.Fprintf(w, "✗ %s: %d errors\n", r.File, len(r.Errors))
		writeProblems(w, "", r.Errors)
	}
	return nil
}

func writeProblems(w io.Writer, prefix string, problems []ValidationError) {
	for _, e := range problems {
		if e.Path != "" {
			fmt.Fprintf(w, "    %s[%s] %s: %s\n", prefix, e.Type, e.Path, e.Message)
		} else {
			fmt.Fprintf(w, "    %s[%s] %s\n", prefix, e.Type, e.Message)
		}
		if e.Suggestion != "" {
			fmt.Fprintf(w, "      hint: %s\n", e.Suggestion)
		}
	}
}

// jsonOut is shared by commands that print a single JSON value.
func jsonOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
