package call

import "time"

// Config of the call engine.
type Config struct {
	// How long an unanswered outgoing or incoming call may ring before it is
	// cancelled automatically.
	RingTimeout time.Duration `yaml:"ringTimeout"`
	// Cooldown after a call ends before a new outgoing call may start, so a
	// rapid redial cannot race the just-freed capture hardware.
	EndCooldown time.Duration `yaml:"endCooldown"`
}

func (c Config) withDefaults() Config {
	if c.RingTimeout == 0 {
		c.RingTimeout = 45 * time.Second
	}
	if c.EndCooldown == 0 {
		c.EndCooldown = 2 * time.Second
	}
	return c
}
