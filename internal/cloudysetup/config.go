package cloudysetup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Duration is a time.Duration that reads and writes Go duration strings
// ("30s", "15m") in JSON. Plain numbers are read as seconds.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\" or a number of seconds")
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Config holds the settings shared by the CLI and the HTTP service.
type Config struct {
	Region        string            `json:"region,omitempty"`
	MaxAttempts   int               `json:"max_attempts,omitempty" validate:"gte=0,lte=1000"`
	SeedWait      Duration          `json:"seed_wait,omitempty" validate:"gte=0"`
	MaxWait       Duration          `json:"max_wait,omitempty" validate:"gte=0"`
	CallTimeout   Duration          `json:"call_timeout,omitempty" validate:"gte=0"`
	ModelTimeout  Duration          `json:"model_timeout,omitempty" validate:"gte=0"`
	ModelProvider string            `json:"model_provider,omitempty" validate:"omitempty,oneof=bedrock openai"`
	ModelID       string            `json:"model_id,omitempty"`
	ModelEndpoint string            `json:"model_endpoint,omitempty" validate:"omitempty,url"`
	ModelAPIKey   string            `json:"model_api_key,omitempty"`
	ApplyTags     bool              `json:"apply_tags,omitempty"`
	Tags          map[string]string `json:"tags,omitempty" validate:"omitempty,max=50,dive,keys,min=1,max=128,endkeys,max=256"`
	DryRun        bool              `json:"dry_run,omitempty"`
}

// Environment variables read by LoadConfig.
const (
	EnvConfigPath    = "CLOUDYSETUP_CONFIG"
	EnvRegion        = "AWS_REGION"
	EnvMaxAttempts   = "CLOUDYSETUP_MAX_ATTEMPTS"
	EnvCallTimeout   = "CLOUDYSETUP_CALL_TIMEOUT"
	EnvModelProvider = "CLOUDYSETUP_MODEL_PROVIDER"
	EnvModelID       = "CLOUDYSETUP_MODEL_ID"
	EnvModelEndpoint = "CLOUDYSETUP_MODEL_ENDPOINT"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvDryRun        = "CLOUDYSETUP_DRY_RUN"
)

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() *Config {
	return &Config{
		Region:        DefaultRegion,
		MaxAttempts:   DefaultMaxAttempts,
		SeedWait:      Duration(SeedWait),
		MaxWait:       Duration(MaxWait),
		CallTimeout:   Duration(DefaultCallTimeout),
		ModelTimeout:  Duration(DefaultModelTimeout),
		ModelProvider: ModelProviderBedrock,
	}
}

// ParseConfig unmarshals JSON config over the defaults.
func ParseConfig(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("invalid config JSON: %w", err)
	}
	cfg.fillDefaults()
	return cfg, nil
}

// LoadConfig reads the JSON config at path (or $CLOUDYSETUP_CONFIG when path
// is empty; no file at all is fine) and then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	var raw []byte
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		raw = data
	}
	cfg, err := ParseConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvRegion); v != "" {
		c.Region = v
	}
	if v := getenv(EnvMaxAttempts); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", EnvMaxAttempts, v)
		}
		c.MaxAttempts = n
	}
	if v := getenv(EnvCallTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: invalid duration %q", EnvCallTimeout, v)
		}
		c.CallTimeout = Duration(d)
	}
	if v := getenv(EnvModelProvider); v != "" {
		c.ModelProvider = v
	}
	if v := getenv(EnvModelID); v != "" {
		c.ModelID = v
	}
	if v := getenv(EnvModelEndpoint); v != "" {
		c.ModelEndpoint = v
	}
	if v := getenv(EnvOpenAIKey); v != "" && c.ModelAPIKey == "" {
		c.ModelAPIKey = v
	}
	if v := getenv(EnvDryRun); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvDryRun, v)
		}
		c.DryRun = b
	}
	return nil
}

// fillDefaults replaces zero values left by a partial JSON document.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Region == "" {
		c.Region = def.Region
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.SeedWait == 0 {
		c.SeedWait = def.SeedWait
	}
	if c.MaxWait == 0 {
		c.MaxWait = def.MaxWait
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = def.CallTimeout
	}
	if c.ModelTimeout == 0 {
		c.ModelTimeout = def.ModelTimeout
	}
	if c.ModelProvider == "" {
		c.ModelProvider = def.ModelProvider
	}
}

// Backoff returns the poll backoff policy described by the config.
func (c *Config) Backoff() Backoff {
	return Backoff{Seed: c.SeedWait.Std(), Max: c.MaxWait.Std(), Unit: time.Second}
}

var regionRE = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)

// configValidator checks struct tags; it caches struct metadata and is safe
// for concurrent use.
var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the config and returns every problem found, joined.
func (c *Config) Validate() error {
	errs := c.validate()
	if len(errs) == 0 {
		return nil
	}
	return errors.New("invalid config: " + strings.Join(errs, "; "))
}

// validate checks the config and returns any validation errors.
func (c *Config) validate() []string {
	var errs []string

	if c.Region != "" && !regionRE.MatchString(c.Region) {
		errs = append(errs, fmt.Sprintf("region %q does not match expected format (e.g. us-east-1)", c.Region))
	}
	if c.SeedWait > 0 && c.MaxWait > 0 && c.SeedWait > c.MaxWait {
		errs = append(errs, fmt.Sprintf("seed_wait %s must not exceed max_wait %s",
			c.SeedWait.Std(), c.MaxWait.Std()))
	}
	for k := range c.Tags {
		if strings.HasPrefix(strings.ToLower(k), "aws:") {
			errs = append(errs, fmt.Sprintf("tags: key %q uses the reserved aws: prefix", k))
		}
	}

	if err := configValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, describeFieldError(fe))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// describeFieldError renders a validator failure using the JSON field name.
func describeFieldError(fe validator.FieldError) string {
	name := jsonFieldNames[fe.StructField()]
	if name == "" {
		name = fe.Field()
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s %q must be one of: %s", name, fe.Value(), fe.Param())
	case "url":
		return fmt.Sprintf("%s %q is not a valid URL", name, fe.Value())
	case "gte":
		return fmt.Sprintf("%s must not be negative", name)
	case "lte", "max":
		return fmt.Sprintf("%s exceeds the maximum of %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s characters", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", name, fe.Tag())
	}
}

var jsonFieldNames = map[string]string{
	"MaxAttempts":   "max_attempts",
	"SeedWait":      "seed_wait",
	"MaxWait":       "max_wait",
	"CallTimeout":   "call_timeout",
	"ModelTimeout":  "model_timeout",
	"ModelProvider": "model_provider",
	"ModelEndpoint": "model_endpoint",
	"Tags":          "tags",
}
