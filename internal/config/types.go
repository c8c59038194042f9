// Package config loads, merges, templates, and validates the document set
// that describes sources and sinks for a push run.
package config

import "gopkg.in/yaml.v3"

// Config is the fully loaded, merged, templated, and validated configuration.
// Sources and Sinks are YAML lists of mappings keyed by `name`, matching the
// name-keyed list merge rule of SPEC_FULL.md §4.1.
type Config struct {
	Vars    map[string]string `yaml:"vars"`
	AWS     AWSConfig         `yaml:"aws"`
	Sources []SourceSpec      `yaml:"sources"`
	Sinks   []SinkSpec        `yaml:"sinks"`
}

// SourceNames returns the declared source names in declaration order.
func (c *Config) SourceNames() []string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = s.Name
	}
	return names
}

// AWSConfig carries ambient AWS client knobs. Credentials themselves are
// resolved from the environment by the AWS SDK default chain; nothing here
// is secret.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// SourceSpec is one named producer of items.
type SourceSpec struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	DeclaredIn  string `yaml:"declared_in,omitempty"`
	Env         *EnvOptions         `yaml:"env"`
	YAML        *YAMLOptions        `yaml:"yaml"`
	OnePassword *OnePasswordOptions `yaml:"onepassword"`
	Keeper      *KeeperOptions      `yaml:"keeper"`
}

// CommonFilter is embedded by every source's options and implements the
// shared post-processing contract of §4.2.
type CommonFilter struct {
	IncludeRegex string   `yaml:"include_regex"`
	Include      string   `yaml:"include"`
	Exclude      []string `yaml:"exclude"`
	Keys         []string `yaml:"keys"`
	StripPrefix  string   `yaml:"strip_prefix"`
}

// EnvOptions configures the env adapter.
type EnvOptions struct {
	CommonFilter `yaml:",inline"`
}

// YAMLOptions configures the yaml adapter.
type YAMLOptions struct {
	CommonFilter `yaml:",inline"`
	Files        []string `yaml:"files"`
	Key          string   `yaml:"key"`
}

// OnePasswordOptions configures the 1password adapter.
type OnePasswordOptions struct {
	CommonFilter `yaml:",inline"`
	Vault        string   `yaml:"vault"`
	TagFilters   []string `yaml:"tag_filters"`
	Concurrency  int      `yaml:"concurrency"`
}

// KeeperOptions configures the keeper adapter.
type KeeperOptions struct {
	CommonFilter `yaml:",inline"`
	Folder       string   `yaml:"folder"`
	TagFilters   []string `yaml:"tag_filters"`
	Concurrency  int      `yaml:"concurrency"`
}

// SinkSources is the sink's `sources` field: either an explicit list of
// source names or the literal wildcard "*". Modeled as a distinct type,
// rather than a bare []string, so an absent field and an explicit `"*"`
// both normalize the same way (decided Open Question, SPEC_FULL.md §9).
type SinkSources struct {
	Names      []string
	Wildcard   bool
	explicit   bool
}

// UnmarshalYAML accepts either a YAML sequence of names or the scalar "*".
func (s *SinkSources) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var scalar string
		if err := value.Decode(&scalar); err != nil {
			return err
		}
		s.explicit = true
		if scalar == "*" {
			s.Wildcard = true
			return nil
		}
		s.Names = []string{scalar}
		return nil
	}

	var list []string
	if err := value.Decode(&list); err != nil {
		return err
	}
	s.explicit = true
	for _, n := range list {
		if n == "*" {
			s.Wildcard = true
			continue
		}
		s.Names = append(s.Names, n)
	}
	return nil
}

// Resolve returns the concrete, ordered list of source names this sink
// subscribes to, expanding an absent field or an explicit "*" to every
// declared source name (in declaration order).
func (s SinkSources) Resolve(declared []string) []string {
	if !s.explicit || s.Wildcard {
		return declared
	}
	return s.Names
}

// SinkSpec is one named consumer of items.
type SinkSpec struct {
	Name    string      `yaml:"name"`
	Type    string      `yaml:"type"`
	Sources SinkSources `yaml:"sources"`
	Prefix  string      `yaml:"prefix"`
	SSM     *SSMOptions            `yaml:"ssm"`
	Secrets *SecretsManagerOptions `yaml:"secrets_manager"`
}

// SSMOptions configures the ssm sink.
type SSMOptions struct {
	Type            string `yaml:"type"`
	KMSKeyID        string `yaml:"kms_key_id"`
	Overwrite       bool   `yaml:"overwrite"`
	Concurrency     int    `yaml:"concurrency"`
	RateLimitRPS    int    `yaml:"rate_limit_rps"`
}

// SecretsManagerOptions configures the secrets_manager sink.
type SecretsManagerOptions struct {
	KMSKeyID     string `yaml:"kms_key_id"`
	Overwrite    bool   `yaml:"overwrite"`
	Concurrency  int    `yaml:"concurrency"`
	RateLimitRPS int    `yaml:"rate_limit_rps"`
}

const (
	SSMTypeSecureString = "SecureString"
	SSMTypeString       = "String"

	defaultConcurrency  = 8
	defaultRateLimitRPS = 10
)
