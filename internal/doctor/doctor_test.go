package doctor

import (
	"errors"
	"strings"
	"testing"

	"github.com/mattjoyce/hostbridge/internal/config"
	"github.com/mattjoyce/hostbridge/internal/printer"
)

func validConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Index.Roots = []config.RootConfig{{Path: t.TempDir(), Collection: "audio"}}
	cfg.Platform.APILevel = 30
	cfg.API.Enabled = true
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "t", Scopes: []string{"media:rw", "consent:rw"}}}
	cfg.Consent.Secret = "s"
	return cfg
}

func newDoctor(cfg *config.Config) *Doctor {
	d := New(cfg)
	d.lookPath = func(string) (string, error) { return "/bin/rm", nil }
	return d
}

func hasIssue(issues []Issue, category, fragment string) bool {
	for _, i := range issues {
		if i.Category == category && strings.Contains(i.Message, fragment) {
			return true
		}
	}
	return false
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestValidate_ConfigErrorSurfaces(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Platform.Tier = "sometimes"
	r := newDoctor(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid config")
	}
	if !hasIssue(r.Errors, "config", "platform.tier") {
		t.Fatalf("missing config error: %v", r.Errors)
	}
}

func TestValidate_WeakTierOverride(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Platform.Tier = "unrestricted"
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "platform", "weaker") {
		t.Fatalf("expected weak tier warning, got %v", r.Warnings)
	}
}

func TestValidate_AllFilesAccess(t *testing.T) {
	t.Parallel()

	cfg := validConfig(t)
	cfg.Platform.APILevel = 30
	cfg.Platform.RequireAllFilesAccess = true
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "platform", "permission_needed") {
		t.Fatalf("expected missing grant warning, got %v", r.Warnings)
	}

	cfg.Platform.AllFilesAccess = true
	r = newDoctor(cfg).Validate()
	if hasIssue(r.Warnings, "platform", "permission_needed") {
		t.Fatalf("grant should clear the warning, got %v", r.Warnings)
	}
	if hasIssue(r.Warnings, "platform", "weaker") {
		t.Fatalf("granted access should not read as a weakened tier, got %v", r.Warnings)
	}

	cfg.Platform.APILevel = 28
	r = newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "platform", "no effect") {
		t.Fatalf("expected no-effect warning below the gated level, got %v", r.Warnings)
	}
}

func TestValidate_UnknownAPILevel(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Platform.APILevel = 0
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "platform", "default_tier") {
		t.Fatalf("expected unknown api level warning, got %v", r.Warnings)
	}
}

func TestValidate_RootProblems(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	dir := cfg.Index.Roots[0].Path
	cfg.Index.Roots = append(cfg.Index.Roots,
		config.RootConfig{Path: dir + "/"},
		config.RootConfig{Path: dir + "/missing"},
	)
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Errors, "index", "duplicates") {
		t.Fatalf("expected duplicate root error, got %v", r.Errors)
	}
	if !hasIssue(r.Warnings, "index", "not accessible") {
		t.Fatalf("expected missing root warning, got %v", r.Warnings)
	}
}

func TestValidate_UnknownScope(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.Tokens[0].Scopes = append(cfg.API.Auth.Tokens[0].Scopes, "plugin:rw")
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Errors, "token_scopes", "plugin:rw") {
		t.Fatalf("expected scope error, got %v", r.Errors)
	}
}

func TestValidate_MissingRm(t *testing.T) {
	t.Parallel()
	d := New(validConfig(t))
	d.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	r := d.Validate()
	if !hasIssue(r.Warnings, "deletion", "rm was not found") {
		t.Fatalf("expected rm warning, got %v", r.Warnings)
	}
}

func TestValidate_Printer(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Printer.Paired = []printer.Device{{Name: "Speaker", Address: "not-an-address"}}
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "printer", "no paired device") {
		t.Fatalf("expected filter warning, got %v", r.Warnings)
	}
	if !hasIssue(r.Errors, "printer", "not a device address") {
		t.Fatalf("expected address error, got %v", r.Errors)
	}
}

func TestValidate_UnsignedConsentAndLegacyKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Consent.Secret = ""
	cfg.API.Auth.Tokens = nil
	cfg.API.Auth.APIKey = "k"
	r := newDoctor(cfg).Validate()
	if !hasIssue(r.Warnings, "api", "not signed") {
		t.Fatalf("expected unsigned warning, got %v", r.Warnings)
	}
	if !hasIssue(r.Warnings, "deprecated", "legacy api_key") {
		t.Fatalf("expected legacy key warning, got %v", r.Warnings)
	}
}

func TestFormatHuman(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("FormatHuman = %q", got)
	}

	r = &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "index", Field: "index.path", Message: "required"}},
		Warnings: []Issue{{Category: "api", Message: "unsigned"}},
	}
	out := FormatHuman(r)
	for _, want := range []string{"1 error(s)", "ERROR [index] index.path: required", "WARN  [api] unsigned"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatHuman missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("FormatJSON = %s", out)
	}
}
