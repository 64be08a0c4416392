package authenticate

// Config is the identity configuration shared by provider selection and
// access checks. It is built once at startup and never mutated afterwards.
type Config struct {
	providers     []string
	requiredRoles []string
}

// NewConfig copies the provider names and required roles so later changes
// to the argument slices cannot leak into request handling.
func NewConfig(providers, requiredRoles []string) Config {
	return Config{
		providers:     copyStrings(providers),
		requiredRoles: copyStrings(requiredRoles),
	}
}

// Enabled reports whether any auth provider is configured. With none,
// requests run anonymously and access checks are skipped.
func (c Config) Enabled() bool {
	return len(c.providers) > 0
}

// Providers returns the configured provider names in configuration order.
func (c Config) Providers() []string {
	return copyStrings(c.providers)
}

// RequiredRoles returns the roles every principal must hold.
func (c Config) RequiredRoles() []string {
	return copyStrings(c.requiredRoles)
}

// HasProvider reports whether name is one of the configured providers.
func (c Config) HasProvider(name string) bool {
	for _, p := range c.providers {
		if p == name {
			return true
		}
	}
	return false
}

func copyStrings(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
