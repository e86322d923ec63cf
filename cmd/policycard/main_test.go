package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/cli"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/evidence/report"
)

const (
	testPolicy        = "testdata/policy.yaml"
	testInvalidPolicy = "testdata/invalid-policy.yaml"
	testCatalog       = "testdata/capabilities.yaml"
)

// resetFlags restores every command's flags to their defaults.
func resetFlags(t *testing.T) {
	t.Helper()
	cfgFile = ""
	verbose = false
	validateFlags.format = "text"
	evaluateFlags = struct {
		policy     string
		capability string
		metadata   string
		context    string
		format     string
	}{format: "text"}
	auditFlags.policy, auditFlags.catalog, auditFlags.output = "", "", ""
	auditFlags.format, auditFlags.archive = "json", "none"
	auditFlags.progress, auditFlags.strict = false, false
	verifyFlags.against, verifyFlags.chain, verifyFlags.format = "", false, "text"
	evidenceFlags.backend, evidenceFlags.timeRange = "", ""
	evidenceFlags.auditID, evidenceFlags.capability, evidenceFlags.rule = "", "", ""
	evidenceFlags.compliant, evidenceFlags.escalated = "", ""
	evidenceFlags.limit, evidenceFlags.offset = 0, 0
	evidenceFlags.sortBy, evidenceFlags.sortOrder = "", ""
	evidenceFlags.format, evidenceFlags.output = "text", ""
}

// writeConfig writes a config file archiving to sqlite under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	data := "evidence:\n  backend: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "evidence.db") + "\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// runAuditTo runs an audit of the test catalog and returns the report path.
func runAuditTo(t *testing.T, dir, format, archive string) string {
	t.Helper()
	auditFlags.policy = testPolicy
	auditFlags.catalog = testCatalog
	auditFlags.format = format
	auditFlags.archive = archive
	auditFlags.output = filepath.Join(dir, "report."+format)

	if err := runAudit(context.Background(), &bytes.Buffer{}); err != nil {
		t.Fatalf("runAudit() error = %v", err)
	}
	return auditFlags.output
}

func TestValidatePolicies(t *testing.T) {
	tests := []struct {
		name     string
		files    []string
		format   string
		wantCode int
		contains []string
	}{
		{"valid", []string{testPolicy}, "text", cli.ExitOK, []string{"✓", "geo@1.0", "1 rules", "sha256:"}},
		{"invalid", []string{testInvalidPolicy}, "text", cli.ExitFailure, []string{"✗", "rules[0].condition.operator"}},
		{"mixed json", []string{testPolicy, testInvalidPolicy}, "json", cli.ExitFailure, []string{`"valid": true`, `"type": "operator"`}},
		{"missing file", []string{"testdata/nonexistent.yaml"}, "text", cli.ExitFailure, []string{"nonexistent.yaml", "[io]"}},
		{"unknown kpi metric", []string{"testdata/kpi-policy.yaml"}, "text", cli.ExitOK, []string{"✓", "warning [kpi] kpis_thresholds.thresholds[1].metric", `unknown metric "uptime"`, "escalation_rate"}},
		{"unknown kpi metric json", []string{"testdata/kpi-policy.yaml"}, "json", cli.ExitOK, []string{`"warnings"`, `"type": "kpi"`}},
		{"known kpi metric", []string{testPolicy}, "json", cli.ExitOK, nil},
		{"bad format", []string{testPolicy}, "xml", cli.ExitUsage, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			validateFlags.format = tt.format

			var out bytes.Buffer
			err := validatePolicies(context.Background(), &out, tt.files)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err = %v)", got, tt.wantCode, err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out.String(), s) {
					t.Errorf("output missing %q:\n%s", s, out.String())
				}
			}
		})
	}
}

func TestEvaluateCapability(t *testing.T) {
	tests := []struct {
		name       string
		capability string
		metadata   string
		context    string
		format     string
		wantCode   int
		contains   []string
	}{
		{
			name:       "compliant",
			capability: "search",
			metadata:   `{"locations": ["EU"]}`,
			format:     "text",
			wantCode:   cli.ExitOK,
			contains:   []string{"search: COMPLIANT", "policy geo@1.0", "#1"},
		},
		{
			name:       "rejected and escalated",
			capability: "translate",
			metadata:   "locations: [US]",
			context:    `{"risk_score": 0.93}`,
			format:     "text",
			wantCode:   cli.ExitNonCompliant,
			contains:   []string{"NOT COMPLIANT", "violation  geo-restriction", "escalation risk_score > 0.8 -> human_review"},
		},
		{
			name:       "metadata from file",
			capability: "summarize",
			metadata:   "@testdata/metadata.yaml",
			format:     "json",
			wantCode:   cli.ExitOK,
			contains:   []string{`"capability": "summarize"`, `"metadata_fingerprint": "sha256:`},
		},
		{"missing capability", "", "", "", "text", cli.ExitUsage, nil},
		{"metadata not a mapping", "search", "[1, 2]", "", "text", cli.ExitUsage, nil},
		{"bad format", "search", "", "", "xml", cli.ExitUsage, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			evaluateFlags.policy = testPolicy
			evaluateFlags.capability = tt.capability
			evaluateFlags.metadata = tt.metadata
			evaluateFlags.context = tt.context
			evaluateFlags.format = tt.format

			var out bytes.Buffer
			err := evaluateCapability(context.Background(), &out)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err = %v)", got, tt.wantCode, err)
			}
			if tt.wantCode == cli.ExitNonCompliant && !cli.Silent(err) {
				t.Errorf("non-compliant exit should be silent, got %v", err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out.String(), s) {
					t.Errorf("output missing %q:\n%s", s, out.String())
				}
			}
		})
	}
}

func TestEvaluateCapability_InvalidPolicy(t *testing.T) {
	resetFlags(t)
	evaluateFlags.policy = testInvalidPolicy
	evaluateFlags.capability = "search"

	err := evaluateCapability(context.Background(), &bytes.Buffer{})
	var cmdErr *cli.CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *cli.CommandError", err)
	}
	if !strings.Contains(err.Error(), "roughly") {
		t.Errorf("error does not name the bad operator: %v", err)
	}
}

func TestRunAudit(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			resetFlags(t)
			path := runAuditTo(t, t.TempDir(), format, "none")

			r, err := readReport(path)
			if err != nil {
				t.Fatalf("readReport() error = %v", err)
			}
			if r.Summary.Total != 3 || r.Summary.Rejected != 1 || r.Summary.Escalated != 1 {
				t.Errorf("summary = %+v, want total 3, rejected 1, escalated 1", r.Summary)
			}
			if got := r.Evidence[1].Capability; got != "translate" {
				t.Errorf("evidence order wrong: second entry is %q", got)
			}
			if !strings.HasPrefix(r.EvidenceHash, "sha256:") {
				t.Errorf("evidence_hash = %q", r.EvidenceHash)
			}
		})
	}
}

func TestRunAudit_Strict(t *testing.T) {
	resetFlags(t)
	auditFlags.policy = testPolicy
	auditFlags.catalog = testCatalog
	auditFlags.strict = true

	var out bytes.Buffer
	err := runAudit(context.Background(), &out)
	if got := cli.ExitCode(err); got != cli.ExitNonCompliant {
		t.Fatalf("exit code = %d, want %d (err = %v)", got, cli.ExitNonCompliant, err)
	}
	if !strings.Contains(out.String(), `"evidence_hash"`) {
		t.Error("report not written before the non-compliant exit")
	}
}

func TestRunAudit_Usage(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		format  string
		archive string
	}{
		{"missing catalog", "", "json", "none"},
		{"bad format", testCatalog, "csv", "none"},
		{"bad archive", testCatalog, "json", "postgres"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			auditFlags.policy = testPolicy
			auditFlags.catalog = tt.catalog
			auditFlags.format = tt.format
			auditFlags.archive = tt.archive

			err := runAudit(context.Background(), &bytes.Buffer{})
			if got := cli.ExitCode(err); got != cli.ExitUsage {
				t.Errorf("exit code = %d, want %d (err = %v)", got, cli.ExitUsage, err)
			}
		})
	}
}

func TestVerifyReport(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	path := runAuditTo(t, dir, "json", "none")
	yamlPath := runAuditTo(t, dir, "yaml", "none")

	t.Run("valid json", func(t *testing.T) {
		resetFlags(t)
		verifyFlags.chain = true

		var out bytes.Buffer
		if err := verifyReport(&out, path); err != nil {
			t.Fatalf("verifyReport() error = %v", err)
		}
		if !strings.Contains(out.String(), "✓") || !strings.Contains(out.String(), "h3") {
			t.Errorf("unexpected output:\n%s", out.String())
		}
	})

	t.Run("valid yaml", func(t *testing.T) {
		resetFlags(t)
		if err := verifyReport(&bytes.Buffer{}, yamlPath); err != nil {
			t.Fatalf("verifyReport() error = %v", err)
		}
	})

	t.Run("tampered", func(t *testing.T) {
		resetFlags(t)
		tampered := tamper(t, path, dir)
		verifyFlags.format = "json"

		var out bytes.Buffer
		err := verifyReport(&out, tampered)
		if got := cli.ExitCode(err); got != cli.ExitVerifyFailed {
			t.Fatalf("exit code = %d, want %d (err = %v)", got, cli.ExitVerifyFailed, err)
		}

		var result VerifyResult
		if err := json.Unmarshal(out.Bytes(), &result); err != nil {
			t.Fatalf("output is not JSON: %v", err)
		}
		if result.Valid || result.Error == "" {
			t.Errorf("result = %+v, want invalid with error", result)
		}
	})

	t.Run("against itself", func(t *testing.T) {
		resetFlags(t)
		verifyFlags.against = path
		if err := verifyReport(&bytes.Buffer{}, path); err != nil {
			t.Errorf("verifyReport(--against self) error = %v", err)
		}
	})

	t.Run("against another period", func(t *testing.T) {
		resetFlags(t)
		verifyFlags.against = yamlPath
		err := verifyReport(&bytes.Buffer{}, path)
		if got := cli.ExitCode(err); got != cli.ExitVerifyFailed {
			t.Errorf("exit code = %d, want %d (err = %v)", got, cli.ExitVerifyFailed, err)
		}
	})

	t.Run("large integer context", func(t *testing.T) {
		resetFlags(t)
		large := withLargeInteger(t, path, dir)
		if err := verifyReport(&bytes.Buffer{}, large); err != nil {
			t.Fatalf("verifyReport() error = %v", err)
		}
		data, err := os.ReadFile(large)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(data, []byte("9007199254740993")) {
			t.Errorf("report lost integer precision:\n%s", data)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		resetFlags(t)
		err := verifyReport(&bytes.Buffer{}, filepath.Join(dir, "nope.json"))
		if got := cli.ExitCode(err); got != cli.ExitUsage {
			t.Errorf("exit code = %d, want %d", got, cli.ExitUsage)
		}
	})
}

// tamper rewrites the first entry's capability and returns the new path.
func tamper(t *testing.T, path, dir string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var r evidence.Report
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatal(err)
	}
	r.Evidence[0].Capability = "rewritten"

	out := filepath.Join(dir, "tampered.json")
	data, err = json.Marshal(&r)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return out
}

// withLargeInteger adds an integer beyond float64 precision to the first
// entry's context, re-chains the report and returns the new path.
func withLargeInteger(t *testing.T, path, dir string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var r evidence.Report
	if err := evidence.Decode(data, &r); err != nil {
		t.Fatal(err)
	}
	r.Evidence[0].Context = map[string]any{"txn_id": int64(9007199254740993)}
	if r.EvidenceHash, err = report.EvidenceHash(r.PolicyName, r.AuditID, r.Evidence); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "large-int.json")
	data, err = json.Marshal(&r)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestQueryEvidence(t *testing.T) {
	resetFlags(t)
	dir := t.TempDir()
	cfgFile = writeConfig(t, dir)
	runAuditTo(t, dir, "json", "sqlite")

	tests := []struct {
		name     string
		setup    func()
		wantRows int
		wantCode int
	}{
		{"all", func() {}, 3, cli.ExitOK},
		{"non compliant", func() { evidenceFlags.compliant = "false" }, 1, cli.ExitOK},
		{"escalated", func() { evidenceFlags.escalated = "true" }, 1, cli.ExitOK},
		{"by rule", func() { evidenceFlags.rule = "geo-restriction" }, 1, cli.ExitOK},
		{"by capability", func() { evidenceFlags.capability = "search" }, 1, cli.ExitOK},
		{"paged", func() { evidenceFlags.limit, evidenceFlags.offset = 1, 2 }, 1, cli.ExitOK},
		{"bad bool", func() { evidenceFlags.compliant = "maybe" }, 0, cli.ExitUsage},
		{"bad sort", func() { evidenceFlags.sortBy = "risk" }, 0, cli.ExitUsage},
		{"bad time range", func() { evidenceFlags.timeRange = "yesterday" }, 0, cli.ExitUsage},
		{"limit over max", func() { evidenceFlags.limit = 20000 }, 0, cli.ExitUsage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			cfgFile = filepath.Join(dir, "config.yaml")
			evidenceFlags.format = "csv"
			tt.setup()

			var out bytes.Buffer
			err := queryEvidence(context.Background(), &out)
			if got := cli.ExitCode(err); got != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (err = %v)", got, tt.wantCode, err)
			}
			if tt.wantCode != cli.ExitOK {
				return
			}

			rows, err := csv.NewReader(&out).ReadAll()
			if err != nil {
				t.Fatalf("output is not CSV: %v", err)
			}
			if got := len(rows) - 1; got != tt.wantRows {
				t.Errorf("rows = %d, want %d", got, tt.wantRows)
			}
		})
	}

	t.Run("text", func(t *testing.T) {
		resetFlags(t)
		cfgFile = filepath.Join(dir, "config.yaml")
		evidenceFlags.sortBy, evidenceFlags.sortOrder = "sequence", "desc"

		var out bytes.Buffer
		if err := queryEvidence(context.Background(), &out); err != nil {
			t.Fatalf("queryEvidence() error = %v", err)
		}
		s := out.String()
		if !strings.Contains(s, "Matching entries: 3") {
			t.Errorf("unexpected output:\n%s", s)
		}
		if strings.Index(s, "summarize") > strings.Index(s, "search") {
			t.Errorf("descending sequence order not applied:\n%s", s)
		}
	})

	t.Run("no archive", func(t *testing.T) {
		resetFlags(t)
		evidenceFlags.backend = "none"
		err := queryEvidence(context.Background(), &bytes.Buffer{})
		if got := cli.ExitCode(err); got != cli.ExitUsage {
			t.Errorf("exit code = %d, want %d", got, cli.ExitUsage)
		}
	})
}

func TestReadMap(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"json", `{"a": 1, "b": [1, 2]}`, 2, false},
		{"yaml", "a: 1\nb: two", 2, false},
		{"null", "null", 0, false},
		{"list", "[1, 2]", 0, true},
		{"missing file", "@testdata/nope.yaml", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := readMap(tt.value, "metadata")
			if (err != nil) != tt.wantErr {
				t.Fatalf("readMap() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(m) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(m), tt.wantLen)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	if !strings.Contains(out.String(), "policycard "+Version) {
		t.Errorf("unexpected version output: %s", out.String())
	}
}
