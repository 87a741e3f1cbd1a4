// Package doctor validates hostbridge configuration against the host it
// will run on.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/hostbridge/internal/config"
	"github.com/mattjoyce/hostbridge/internal/deletion"
	"github.com/mattjoyce/hostbridge/internal/printer"
	"github.com/mattjoyce/hostbridge/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

var knownScopes = map[string]bool{
	"*":          true,
	"media:rw":   true,
	"media:ro":   true,
	"consent:rw": true,
	"consent:ro": true,
	"index:rw":   true,
	"index:ro":   true,
	"printer:rw": true,
	"printer:ro": true,
	"notify:rw":  true,
	"events:ro":  true,
	"journal:ro": true,
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg      *config.Config
	lookPath func(string) (string, error)
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.validateStorage(r)
	d.validateIndexRoots(r)
	d.validatePlatform(r)
	d.validateDeletion(r)
	d.validatePrinter(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateStorage rejects an index database on a network mount.
func (d *Doctor) validateStorage(r *Result) {
	if d.cfg.Index.Path == "" {
		return
	}
	if err := storage.CheckLocalFilesystem(d.cfg.Index.Path); err != nil {
		d.addError(r, "storage", "index.path", err.Error())
	}
}

// validateIndexRoots checks that indexed roots exist and do not overlap.
func (d *Doctor) validateIndexRoots(r *Result) {
	if len(d.cfg.Index.Roots) == 0 {
		d.addWarning(r, "index", "index.roots", "no roots configured; the index will only change through the API")
	}
	seen := make(map[string]int)
	for i, root := range d.cfg.Index.Roots {
		field := fmt.Sprintf("index.roots[%d].path", i)
		info, err := os.Stat(root.Path)
		switch {
		case err != nil:
			d.addWarning(r, "index", field, fmt.Sprintf("root %q is not accessible: %v", root.Path, err))
		case !info.IsDir():
			d.addError(r, "index", field, fmt.Sprintf("root %q is not a directory", root.Path))
		case d.cfg.Index.Watch:
			if m, err := storage.InspectMount(root.Path); err == nil && !m.Watchable {
				d.addWarning(r, "index", field, fmt.Sprintf("root %q is on a %s filesystem; the watcher will miss changes made elsewhere", root.Path, m.FSType))
			}
		}

		normalized := strings.TrimSuffix(root.Path, "/")
		if prev, ok := seen[normalized]; ok {
			d.addError(r, "index", field, fmt.Sprintf("root %q duplicates index.roots[%d]", root.Path, prev))
		}
		seen[normalized] = i
	}
}

// validatePlatform flags overrides that contradict the reported API level
// and access grants that cannot take effect.
func (d *Doctor) validatePlatform(r *Result) {
	p := d.cfg.Platform
	fallback, err := deletion.ParseTier(p.DefaultTier)
	if err != nil {
		fallback = deletion.UserConsentRequired
	}
	facts := deletion.PlatformFacts{APILevel: p.APILevel, AllFilesAccess: p.AllFilesAccess}
	derived := deletion.SelectTier(facts, "", fallback)
	selected := deletion.SelectTier(facts, p.Tier, fallback)

	if selected < derived {
		d.addWarning(r, "platform", "platform.tier",
			fmt.Sprintf("tier %q is weaker than %q derived from api_level %d; deletions may be refused by the host",
				selected, derived, p.APILevel))
	}
	if p.APILevel == 0 && (p.Tier == "" || p.Tier == "auto") {
		d.addWarning(r, "platform", "platform.api_level",
			fmt.Sprintf("api_level unknown; using default_tier %q", fallback))
	}
	if p.AllFilesAccess && !facts.NeedsAllFilesAccess() {
		d.addWarning(r, "platform", "platform.all_files_access",
			fmt.Sprintf("all_files_access has no effect at api_level %d", p.APILevel))
	}
	if p.RequireAllFilesAccess && !facts.HasAllFilesAccess() {
		d.addWarning(r, "platform", "platform.require_all_files_access",
			"all_files_access is not granted; every deletion will be refused with permission_needed")
	}
}

// validateDeletion checks timeouts and the external removal fallback.
func (d *Doctor) validateDeletion(r *Result) {
	del := d.cfg.Deletion
	if del.ConsentTimeout > 0 && del.ConsentTimeout < 10*time.Second {
		d.addWarning(r, "deletion", "deletion.consent_timeout",
			fmt.Sprintf("consent_timeout %s leaves little time for a user to answer", del.ConsentTimeout))
	}
	if del.ExternalRemove {
		if _, err := d.lookPath("rm"); err != nil {
			d.addWarning(r, "deletion", "deletion.external_remove", "external_remove enabled but rm was not found in PATH")
		}
	}
	if del.Journal && del.JournalRetention <= 0 {
		d.addWarning(r, "deletion", "deletion.journal_retention", "journal enabled without retention; it will grow without bound")
	}
}

// validatePrinter checks that paired devices would be discovered.
func (d *Doctor) validatePrinter(r *Result) {
	pc := d.cfg.Printer
	if len(pc.Paired) == 0 {
		return
	}
	found := printer.Discover(pc.Paired, pc.NameFilters)
	if len(found) == 0 {
		d.addWarning(r, "printer", "printer.name_filters", "no paired device matches name_filters")
	}
	for i, dev := range pc.Paired {
		if pc.Transport == "rfcomm" && strings.Count(dev.Address, ":") != 5 {
			d.addError(r, "printer", fmt.Sprintf("printer.paired[%d].address", i),
				fmt.Sprintf("address %q is not a device address", dev.Address))
		}
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
	if d.cfg.Consent.Secret == "" {
		d.addWarning(r, "api", "consent.secret", "consent callbacks are not signed")
	}
}

// validateTokenScopes checks that every scope is one the API knows.
func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			if !knownScopes[strings.TrimSpace(scope)] {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q", scope))
			}
		}
	}
}

// warnMissingEnvVars warns about ${VAR} references where VAR is not set.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	envVarRe := regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

	check := func(field, value string) {
		for _, m := range envVarRe.FindAllStringSubmatch(value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", field, fmt.Sprintf("environment variable ${%s} not set", m[1]))
			}
		}
	}
	check("api.auth.api_key", d.cfg.API.Auth.APIKey)
	check("consent.secret", d.cfg.Consent.Secret)
	for i, root := range d.cfg.Index.Roots {
		check(fmt.Sprintf("index.roots[%d].path", i), root.Path)
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
