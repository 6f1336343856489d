package config

// QuotaConfig configures per-user usage quotas.
// A limit of 0 means the resource is uncapped.
type QuotaConfig struct {
	// Period over which counters accumulate before reset
	Period string `yaml:"period"` // Default: "720h" (30 days)

	// Per-resource limits for the default plan
	Limits map[string]int64 `yaml:"limits"`

	// SuggestedAction returned with denials
	UpgradeHint string `yaml:"upgrade_hint"`
}

// DefaultQuotaConfig returns sensible defaults.
func DefaultQuotaConfig() QuotaConfig {
	return QuotaConfig{
		Period: "720h",
		Limits: map[string]int64{
			"chatMessages":    50,
			"ragQueries":      200,
			"largeModelCalls": 20,
		},
		UpgradeHint: "Upgrade your plan to continue, or wait for your quota to reset.",
	}
}
