package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
)

var verifyFlags struct {
	against string
	chain   bool
	format  string
}

var verifyCmd = &cobra.Command{
	Use:   "verify <report-file>",
	Short: "Verify a report's evidence hash chain",
	Long: `Recompute the evidence hash chain of a JSON or YAML report and compare it
with the recorded evidence_hash. With --against, also check that an
earlier report of the same audit period is a prefix of this one and name
the first entry that differs.

Exit status is 4 when verification fails.

Examples:
  policycard verify report.json

  # Show every chain step
  policycard verify --chain report.json

  # Detect rewritten history between two snapshots
  policycard verify --against snapshot-0900.json snapshot-1000.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return verifyReport(cmd.OutOrStdout(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().StringVar(&verifyFlags.against, "against", "", "earlier report that must be a prefix of this one")
	verifyCmd.Flags().BoolVar(&verifyFlags.chain, "chain", false, "print every chain step")
	verifyCmd.Flags().StringVar(&verifyFlags.format, "format", "text", "output format: text, json")
}

// VerifyResult is what verify prints.
type VerifyResult struct {
	File         string   `json:"file"`
	AuditID      string   `json:"audit_id"`
	Policy       string   `json:"policy"`
	Entries      int      `json:"entries"`
	EvidenceHash string   `json:"evidence_hash"`
	Valid        bool     `json:"valid"`
	Error        string   `json:"error,omitempty"`
	Against      string   `json:"against,omitempty"`
	Chain        []string `json:"chain,omitempty"`
}

func verifyReport(out io.Writer, path string) error {
	if verifyFlags.format != "text" && verifyFlags.format != "json" {
		return cli.NewConfigError("format", fmt.Sprintf("unsupported format %q (want text or json)", verifyFlags.format))
	}

	r, err := readReport(path)
	if err != nil {
		return err
	}

	result := VerifyResult{
		File:         path,
		AuditID:      r.AuditID,
		Policy:       r.PolicyName + "@" + r.PolicyVersion,
		Entries:      len(r.Evidence),
		EvidenceHash: r.EvidenceHash,
		Valid:        true,
		Against:      verifyFlags.against,
	}

	verr := report.Verify(r)
	if verr == nil && verifyFlags.against != "" {
		earlier, err := readReport(verifyFlags.against)
		if err != nil {
			return err
		}
		verr = report.VerifyPrefix(earlier, r)
	}
	if verr != nil {
		result.Valid = false
		result.Error = verr.Error()
	}

	if verifyFlags.chain {
		if result.Chain, err = report.ChainHashes(r.PolicyName, r.AuditID, r.Evidence); err != nil {
			return cli.NewCommandError("verify", err)
		}
	}

	if verifyFlags.format == "json" {
		err = jsonOut(out, result)
	} else {
		err = outputVerifyText(out, result)
	}
	if err != nil {
		return err
	}

	if !result.Valid {
		return cli.NewExitError(cli.ExitVerifyFailed, "verification failed: "+result.Error)
	}
	return nil
}

// readReport decodes a report file. .yaml and .yml are read as YAML,
// anything else as JSON.
func readReport(path string) (*evidence.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cli.NewConfigError("report", err.Error())
	}

	var r evidence.Report
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &r)
	default:
		err = evidence.Decode(data, &r)
	}
	if err != nil {
		return nil, cli.NewCommandError("verify", fmt.Errorf("decoding report %q: %w", path, err))
	}
	return &r, nil
}

func outputVerifyText(w io.Writer, r VerifyResult) error {
	mark := "✓"
	if !r.Valid {
		mark = "✗"
	}
	fmt.Fprintf(w, "%s %s: audit %s, policy %s, %d entries\n", mark, r.File, r.AuditID, r.Policy, r.Entries)
	fmt.Fprintf(w, "  evidence_hash %s\n", r.EvidenceHash)
	if r.Against != "" && r.Valid {
		fmt.Fprintf(w, "  prefix of this report: %s\n", r.Against)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  %s\n", r.Error)
	}
	for i, h := range r.Chain {
		fmt.Fprintf(w, "  h%-4d %s\n", i, h)
	}
	return nil
}
