package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/auditor"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
)

var evaluateFlags struct {
	policy     string
	capability string
	metadata   string
	context    string
	format     string
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate one capability against a policy card",
	Long: `Evaluate a single capability and print the decision with its evidence
entry. Metadata and escalation context are YAML or JSON mappings given
inline or as @file.

Exit status is 3 when the capability is not compliant.

Examples:
  policycard evaluate --policy policy.yaml --capability search \
    --metadata '{"locations": ["US"], "data_retention_days": 30}'

  policycard evaluate --policy policy.yaml --capability export \
    --metadata @meta.yaml --context '{"risk_score": 0.93}' --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return evaluateCapability(cmd.Context(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVarP(&evaluateFlags.policy, "policy", "p", "", "policy card file (default: policy source from config)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.capability, "capability", "", "capability name")
	evaluateCmd.Flags().StringVarP(&evaluateFlags.metadata, "metadata", "m", "", "capability metadata (inline or @file)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.context, "context", "", "escalation context (inline or @file)")
	evaluateCmd.Flags().StringVar(&evaluateFlags.format, "format", "text", "output format: text, json, yaml")
}

// EvaluationOutput is what evaluate prints.
type EvaluationOutput struct {
	Policy   string             `json:"policy" yaml:"policy"`
	AuditID  string             `json:"audit_id" yaml:"audit_id"`
	Evidence *evidence.Evidence `json:"evidence" yaml:"evidence"`
}

// String renders the decision for terminals.
func (o EvaluationOutput) String() string {
	e := o.Evidence
	status := "COMPLIANT"
	if !e.Result.Compliant {
		status = "NOT COMPLIANT"
	}

	s := fmt.Sprintf("%s: %s (policy %s)\n", e.Capability, status, o.Policy)
	for _, v := range e.Result.Violations {
		s += fmt.Sprintf("  violation  %s: %s\n", v.RuleID, v.Reason)
	}
	for _, w := range e.Result.Warnings {
		s += fmt.Sprintf("  warning    %s: %s\n", w.RuleID, w.Reason)
	}
	for _, t := range e.Escalations {
		s += fmt.Sprintf("  escalation %s -> %s\n", t.Condition, t.Action)
	}
	s += fmt.Sprintf("  evidence   %s #%d %s", e.AuditID, e.Sequence, e.MetadataFingerprint)
	return s
}

func evaluateCapability(ctx context.Context, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if evaluateFlags.capability == "" {
		return cli.NewConfigError("capability", "--capability is required")
	}
	formatter, err := cli.NewFormatter(cli.OutputFormat(evaluateFlags.format))
	if err != nil {
		return err
	}

	metadata, err := readMap(evaluateFlags.metadata, "metadata")
	if err != nil {
		return err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	vars, err := readMap(evaluateFlags.context, "context")
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := policySource(cfg.Policy, evaluateFlags.policy)
	if err != nil {
		return err
	}

	svc, err := auditor.New(ctx, src, auditor.WithLogger(commandLogger(nil)))
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}
	defer svc.Close(context.Background())

	_, e, err := svc.Evaluate(ctx, evaluateFlags.capability, metadata, vars)
	if err != nil {
		return cli.NewCommandError("evaluate", err)
	}

	doc := svc.Document()
	result := EvaluationOutput{
		Policy:   doc.Name + "@" + doc.Version,
		AuditID:  svc.AuditID(),
		Evidence: e,
	}
	if err := formatter.FormatTo(out, result); err != nil {
		return err
	}

	if !e.Result.Compliant {
		return cli.NewExitError(cli.ExitNonCompliant, "")
	}
	return nil
}
