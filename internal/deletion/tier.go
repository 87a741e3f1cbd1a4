package deletion

import (
	"fmt"
	"strings"
)

// Tier is how much deletion authority the process holds without asking the
// user.
type Tier int

const (
	// Unrestricted may delete any visible file and any index row.
	Unrestricted Tier = iota
	// ExceptionRecoverable may hit a security fault deleting foreign index
	// rows and falls back to direct removal.
	ExceptionRecoverable
	// UserConsentRequired must obtain asynchronous user consent before a
	// foreign index row can be deleted.
	UserConsentRequired
)

func (t Tier) String() string {
	switch t {
	case Unrestricted:
		return "unrestricted"
	case ExceptionRecoverable:
		return "recoverable"
	case UserConsentRequired:
		return "consent"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// MarshalText lets tiers appear by name in JSON and YAML.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText accepts the names produced by String.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// ParseTier accepts the names produced by String.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unrestricted":
		return Unrestricted, nil
	case "recoverable":
		return ExceptionRecoverable, nil
	case "consent":
		return UserConsentRequired, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// PlatformFacts are the host facts the tier is derived from.
type PlatformFacts struct {
	// APILevel is the host platform API level; 0 means unknown.
	APILevel int
	// AllFilesAccess is the host's "all files access" grant. Hosts below
	// the consent level never gate on it.
	AllFilesAccess bool
}

// NeedsAllFilesAccess reports whether the host gates broad file access
// behind an explicit grant.
func (f PlatformFacts) NeedsAllFilesAccess() bool {
	return f.APILevel >= consentAPILevel
}

// HasAllFilesAccess reports the grant as the host would: always held
// where the host does not gate on it.
func (f PlatformFacts) HasAllFilesAccess() bool {
	return !f.NeedsAllFilesAccess() || f.AllFilesAccess
}

const (
	recoverableAPILevel = 29
	consentAPILevel     = 30
)

// SelectTier maps platform facts to a tier. A non-empty override other
// than "auto" wins outright; unknown facts select fallback. The all files
// access grant lifts the consent level to Unrestricted.
func SelectTier(facts PlatformFacts, override string, fallback Tier) Tier {
	if o := strings.TrimSpace(override); o != "" && !strings.EqualFold(o, "auto") {
		if t, err := ParseTier(o); err == nil {
			return t
		}
	}
	switch {
	case facts.APILevel >= consentAPILevel:
		if facts.AllFilesAccess {
			return Unrestricted
		}
		return UserConsentRequired
	case facts.APILevel == recoverableAPILevel:
		return ExceptionRecoverable
	case facts.APILevel > 0:
		return Unrestricted
	default:
		return fallback
	}
}
