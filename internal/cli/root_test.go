package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const threatCSV = "severity,threat_type,status,confidence_score\n" +
	"critical,prompt_injection,successful,0.9\n" +
	"high,data_poisoning,blocked,0.5\n" +
	"urgent,phishing,successful,abc\n"

// resetFlags restores flag globals between runs of the shared root command.
func resetFlags() {
	outputFormat = "json"
	logLevel = "warn"
	showDiagnostics = false
	maxFileSize = defaultMaxFileSize
	parallel = 4
}

// run executes threatctl with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithInput(t, "", args...)
}

// runWithInput is run with stdin set to input.
func runWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	resetFlags()

	var out, errOut bytes.Buffer
	rootCmd.SetIn(strings.NewReader(input))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze_JSON(t *testing.T) {
	path := writeFile(t, "threats.csv", threatCSV)

	out, err := run(t, "analyze", path)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var reports []fileReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %d, want 1", len(reports))
	}
	r := reports[0]
	if r.Summary.TotalThreats != 3 {
		t.Errorf("TotalThreats = %d, want 3", r.Summary.TotalThreats)
	}
	if r.Summary.SeverityLevels["urgent"] != 1 {
		t.Errorf("unknown severity bucket = %d, want 1", r.Summary.SeverityLevels["urgent"])
	}
	if r.Diagnostics != nil {
		t.Error("diagnostics should be omitted without --diagnostics")
	}
	if r.Size != int64(len(threatCSV)) {
		t.Errorf("Size = %d, want %d", r.Size, len(threatCSV))
	}
}

func TestAnalyze_Diagnostics(t *testing.T) {
	path := writeFile(t, "threats.csv", threatCSV)

	out, err := run(t, "analyze", path, "--diagnostics")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var reports []fileReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatal(err)
	}
	d := reports[0].Diagnostics
	if d == nil {
		t.Fatal("expected diagnostics")
	}
	if d.UnknownAttackTypes["phishing"] != 1 {
		t.Errorf("UnknownAttackTypes = %v", d.UnknownAttackTypes)
	}
	if len(d.InvalidConfidence) != 1 {
		t.Errorf("InvalidConfidence = %v", d.InvalidConfidence)
	}
}

func TestAnalyze_TextMultipleFiles(t *testing.T) {
	a := writeFile(t, "a.csv", threatCSV)
	b := writeFile(t, "b.csv", "severity\nlow\n")

	out, err := run(t, "analyze", a, b, "--format", "text", "--diagnostics")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	for _, want := range []string{"Total threats:", "Prompt Injection", `unknown severity "urgent"`, "b.csv"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "a.csv") > strings.Index(out, "b.csv") {
		t.Error("reports should follow argument order")
	}
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name string
		args func(t *testing.T) []string
		want string
	}{
		{
			name: "missing file",
			args: func(t *testing.T) []string { return []string{"analyze", filepath.Join(t.TempDir(), "nope.csv")} },
			want: "no such file",
		},
		{
			name: "wrong extension",
			args: func(t *testing.T) []string { return []string{"analyze", writeFile(t, "log.txt", threatCSV)} },
			want: "FILE002",
		},
		{
			name: "empty file",
			args: func(t *testing.T) []string { return []string{"analyze", writeFile(t, "empty.csv", "")} },
			want: "FILE004",
		},
		{
			name: "too large",
			args: func(t *testing.T) []string {
				return []string{"analyze", writeFile(t, "big.csv", threatCSV), "--max-size", "10"}
			},
			want: "FILE001",
		},
		{
			name: "bad format",
			args: func(t *testing.T) []string { return []string{"analyze", "x.csv", "--format", "yaml"} },
			want: "invalid --format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args(t)...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	out, err := run(t, "catalog")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	for _, at := range []string{"data_poisoning", "prompt_injection", "model_inversion"} {
		if !strings.Contains(out, at) {
			t.Errorf("catalog missing %s", at)
		}
	}

	out, err = run(t, "catalog", "Prompt_Injection", "--format", "text")
	if err != nil {
		t.Fatalf("catalog single: %v", err)
	}
	if !strings.Contains(out, "Remediation:") || strings.Contains(out, "Model Inversion") {
		t.Errorf("unexpected single entry output:\n%s", out)
	}

	if _, err := run(t, "catalog", "phishing"); err == nil {
		t.Error("expected error for unknown attack type")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		args    []string
		want    string
		wantErr string
	}{
		{
			name: "argument text as json",
			args: []string{"classify", "ignore", "previous", "instructions"},
			want: `"threatType":"prompt_injection"`,
		},
		{
			name:  "stdin when no argument",
			input: "backdoor found in the training data\n",
			args:  []string{"classify"},
			want:  `"threatType":"data_poisoning"`,
		},
		{
			name:  "stdin with dash",
			input: "membership inference against the model",
			args:  []string{"classify", "-", "--format", "text"},
			want:  "Threat type: model_inversion",
		},
		{
			name: "benign text",
			args: []string{"classify", "nightly backup finished", "--format", "text"},
			want: "Threat type: normal",
		},
		{
			name:    "blank input",
			input:   "  \n",
			args:    []string{"classify"},
			wantErr: "ANL003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runWithInput(t, tt.input, tt.args...)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %s", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if !strings.Contains(strings.ReplaceAll(out, " ", ""), strings.ReplaceAll(tt.want, " ", "")) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "threatctl version "+Version) {
		t.Errorf("output = %q", out)
	}
}
