package threat

import (
	"errors"
	"strings"
	"testing"
)

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog()
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	entries := c.Entries()
	if len(entries) != len(KnownAttackTypes) {
		t.Fatalf("got %d entries, want %d", len(entries), len(KnownAttackTypes))
	}
	for i, e := range entries {
		if e.Type != KnownAttackTypes[i] {
			t.Errorf("entry %d type = %q, want %q", i, e.Type, KnownAttackTypes[i])
		}
		if e.Description == "" || len(e.Impacts) == 0 || len(e.Remediation) == 0 || len(e.Indicators) == 0 {
			t.Errorf("%s: incomplete entry %+v", e.Type, e)
		}
	}

	if _, ok := c.Lookup(AttackType("sql_injection")); ok {
		t.Error("Lookup returned an entry for an untracked type")
	}
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "malformed yaml",
			doc:     "attack_types: [",
			wantErr: "decode catalog",
		},
		{
			name: "missing entries",
			doc: `attack_types:
  data_poisoning:
    title: Data Poisoning
`,
			wantErr: "missing entry for prompt_injection",
		},
		{
			name: "unknown key",
			doc: `attack_types:
  data_poisoning: {title: a}
  prompt_injection: {title: b}
  model_inversion: {title: c}
  phishing: {title: d}
`,
			wantErr: `unknown attack type "phishing"`,
		},
		{
			name: "missing title",
			doc: `attack_types:
  data_poisoning: {title: a}
  prompt_injection: {title: b}
  model_inversion: {description: c}
`,
			wantErr: "model_inversion: title is required",
		},
		{
			name: "indicator without weight",
			doc: `attack_types:
  data_poisoning: {title: a, indicators: [{phrase: backdoor}]}
  prompt_injection: {title: b}
  model_inversion: {title: c}
`,
			wantErr: "data_poisoning: indicator 0 needs a phrase and a positive weight",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestCatalogFind(t *testing.T) {
	c := MustLoadCatalog()

	tests := []struct {
		name    string
		want    AttackType
		wantErr bool
	}{
		{"prompt_injection", AttackPromptInjection, false},
		{"  Model_Inversion ", AttackModelInversion, false},
		{"phishing", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := c.Find(tt.name)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownAttackType) {
					t.Errorf("err = %v, want ErrUnknownAttackType", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if e.Type != tt.want {
				t.Errorf("Type = %q, want %q", e.Type, tt.want)
			}
		})
	}
}
