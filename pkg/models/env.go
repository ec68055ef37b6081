package models

// Env selects between development and production builds.
type Env string

const (
	// EnvDevelopment keeps output readable; minification and debug stripping are skipped.
	EnvDevelopment Env = "development"
	// EnvProduction enables minification and debug stripping.
	EnvProduction Env = "production"
)

// ParseEnv maps an environment variable value to an Env.
// Only the literal "production" selects production.
func ParseEnv(value string) Env {
	if value == string(EnvProduction) {
		return EnvProduction
	}
	return EnvDevelopment
}

// IsProduction reports whether production-only stages should run.
func (e Env) IsProduction() bool {
	return e == EnvProduction
}

// Valid returns true if the env is a known value.
func (e Env) Valid() bool {
	switch e {
	case EnvDevelopment, EnvProduction:
		return true
	default:
		return false
	}
}
