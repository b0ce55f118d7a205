package agent

import (
	"os"
	"time"

	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RetryConfig bounds how failed decision rounds are reattempted. MaxRetries
// counts extra attempts beyond the first; RetryDelay paces them. Only round
// timeouts consume the budget unless RetryOnError opts other provider
// failures in as well. Tool failures never retry; they are reported to the
// model instead.
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	RetryOnError bool          `yaml:"retry_on_error"`
}

// Config is the per-session tuning of an Agent. It is read at construction
// and never mutated afterwards.
type Config struct {
	SystemPrompt string `yaml:"system_prompt"`
	// PromptVars, when non-nil, turns SystemPrompt into a template that is
	// rendered once at construction time.
	PromptVars map[string]interface{} `yaml:"prompt_vars,omitempty"`
	// MaxTurns bounds the decision rounds of a single Handle call.
	MaxTurns int `yaml:"max_turns"`
	// MaxTokens budgets the context view handed to the model and caps the
	// completion length of each request. Nil means no limit on either.
	MaxTokens      *int          `yaml:"max_tokens,omitempty"`
	EnableParallel bool          `yaml:"enable_parallel"`
	MaxParallel    int           `yaml:"max_parallel,omitempty"`
	Retry          RetryConfig   `yaml:"retry"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

func DefaultConfig() Config {
	maxTokens := 2048
	return Config{
		SystemPrompt: "You are a helpful AI assistant.",
		MaxTurns:     10,
		MaxTokens:    &maxTokens,
		Retry: RetryConfig{
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
		Temperature: 0.7,
		Timeout:     30 * time.Second,
	}
}

// Clone returns a deep copy, so one session can tweak its configuration
// without affecting the Config it started from.
func (c Config) Clone() Config {
	return clone.Clone(c).(Config)
}

// LoadConfig reads a YAML file on top of DefaultConfig, so partial files
// only override the fields they name.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "could not read config file")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "could not parse config file %s", path)
	}

	return cfg, nil
}

type rawRetryConfig struct {
	MaxRetries   *int    `yaml:"max_retries"`
	RetryDelay   *string `yaml:"retry_delay"`
	RetryOnError *bool   `yaml:"retry_on_error"`
}

type rawConfig struct {
	SystemPrompt   *string                `yaml:"system_prompt"`
	PromptVars     map[string]interface{} `yaml:"prompt_vars"`
	MaxTurns       *int                   `yaml:"max_turns"`
	MaxTokens      *int                   `yaml:"max_tokens"`
	EnableParallel *bool                  `yaml:"enable_parallel"`
	MaxParallel    *int                   `yaml:"max_parallel"`
	Retry          *rawRetryConfig        `yaml:"retry"`
	Temperature    *float64               `yaml:"temperature"`
	Timeout        *string                `yaml:"timeout"`
}

// UnmarshalYAML overlays a document onto the receiver: absent fields keep
// whatever the receiver already holds. Durations are strings in
// time.ParseDuration syntax ("30s", "1m"); max_tokens <= 0 lifts the token
// limit entirely.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	raw := rawConfig{}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.SystemPrompt != nil {
		c.SystemPrompt = *raw.SystemPrompt
	}
	if raw.PromptVars != nil {
		c.PromptVars = raw.PromptVars
	}
	if raw.MaxTurns != nil {
		c.MaxTurns = *raw.MaxTurns
	}
	if raw.MaxTokens != nil {
		if *raw.MaxTokens <= 0 {
			c.MaxTokens = nil
		} else {
			c.MaxTokens = raw.MaxTokens
		}
	}
	if raw.EnableParallel != nil {
		c.EnableParallel = *raw.EnableParallel
	}
	if raw.MaxParallel != nil {
		c.MaxParallel = *raw.MaxParallel
	}
	if raw.Temperature != nil {
		c.Temperature = *raw.Temperature
	}
	if raw.Timeout != nil {
		timeout, err := time.ParseDuration(*raw.Timeout)
		if err != nil {
			return errors.Wrapf(err, "invalid timeout %q", *raw.Timeout)
		}
		c.Timeout = timeout
	}
	if raw.Retry != nil {
		if raw.Retry.MaxRetries != nil {
			c.Retry.MaxRetries = *raw.Retry.MaxRetries
		}
		if raw.Retry.RetryDelay != nil {
			delay, err := time.ParseDuration(*raw.Retry.RetryDelay)
			if err != nil {
				return errors.Wrapf(err, "invalid retry_delay %q", *raw.Retry.RetryDelay)
			}
			c.Retry.RetryDelay = delay
		}
		if raw.Retry.RetryOnError != nil {
			c.Retry.RetryOnError = *raw.Retry.RetryOnError
		}
	}

	return nil
}
