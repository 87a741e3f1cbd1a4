package deletion

import "errors"

var errAccessNotGranted = errors.New("all files access not granted; grant it in the host settings")

// AccessStatus describes the host's all files access grant as the
// coordinator sees it.
type AccessStatus struct {
	APILevel int  `json:"api_level"`
	Required bool `json:"required"`
	Granted  bool `json:"granted"`
	// Enforced is set when requests are refused without the grant.
	Enforced bool `json:"enforced"`
	Tier     Tier `json:"tier"`
}

// AccessFor describes the grant for facts on a coordinator running at tier.
func AccessFor(facts PlatformFacts, enforced bool, tier Tier) AccessStatus {
	return AccessStatus{
		APILevel: facts.APILevel,
		Required: facts.NeedsAllFilesAccess(),
		Granted:  facts.HasAllFilesAccess(),
		Enforced: enforced,
		Tier:     tier,
	}
}

// Access reports the all files access grant and whether Delete enforces it.
func (c *Coordinator) Access() AccessStatus {
	return AccessFor(c.facts, c.gated, c.tier)
}

func (c *Coordinator) checkAccess(path string) error {
	if c.gated && !c.facts.HasAllFilesAccess() {
		return newError(KindPermissionNeeded, path, errAccessNotGranted)
	}
	return nil
}
