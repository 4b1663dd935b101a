package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/iliyamo/moderation-escalation/internal/policy"
)

// PolicyConfig controls escalation thresholds and the failure-handling
// switches of the moderation services.
type PolicyConfig struct {
	StrikesPerSuspension int `envconfig:"MODERATION_STRIKES_PER_SUSPENSION" default:"3"`
	SuspensionsBeforeBan int `envconfig:"MODERATION_SUSPENSIONS_BEFORE_BAN" default:"3"`
	// SuspensionDuration is the term of a strike-triggered suspension.  The
	// admin suspend_7days action is always seven days.
	SuspensionDuration time.Duration `envconfig:"MODERATION_SUSPENSION_DURATION" default:"168h"`
	// AdminSuspendEscalates makes suspend_7days ban at the threshold.
	AdminSuspendEscalates bool `envconfig:"MODERATION_ADMIN_SUSPEND_ESCALATES" default:"false"`
	// DegradedViolations lets an action complete with a placeholder
	// violation when the violation insert fails transiently.
	DegradedViolations bool `envconfig:"MODERATION_DEGRADED_VIOLATIONS" default:"true"`
	// AuditStrict writes audit entries inside the primary transaction.
	AuditStrict bool `envconfig:"AUDIT_STRICT" default:"false"`
}

// LoadPolicyConfig decodes PolicyConfig from the environment.
func LoadPolicyConfig() (PolicyConfig, error) {
	var pc PolicyConfig
	if err := envconfig.Process("", &pc); err != nil {
		return PolicyConfig{}, fmt.Errorf("load policy config: %w", err)
	}
	if pc.StrikesPerSuspension < 1 || pc.SuspensionsBeforeBan < 1 {
		return PolicyConfig{}, fmt.Errorf("load policy config: thresholds must be positive")
	}
	if pc.SuspensionDuration <= 0 {
		return PolicyConfig{}, fmt.Errorf("load policy config: suspension duration must be positive")
	}
	return pc, nil
}

// Policy converts the configuration into an escalation policy.
func (pc PolicyConfig) Policy() policy.Policy {
	return policy.Policy{
		StrikesPerSuspension:  pc.StrikesPerSuspension,
		SuspensionsBeforeBan:  pc.SuspensionsBeforeBan,
		SuspensionDuration:    pc.SuspensionDuration,
		AdminSuspendEscalates: pc.AdminSuspendEscalates,
	}
}
