package cloudysetup

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DiagnosticWarning represents a non-fatal issue detected before any
// request is sent.
type DiagnosticWarning struct {
	Category string
	Message  string
	Hint     string
}

// String formats the warning for display.
func (w DiagnosticWarning) String() string {
	if w.Hint != "" {
		return fmt.Sprintf("[%s] %s (hint: %s)", w.Category, w.Message, w.Hint)
	}
	return fmt.Sprintf("[%s] %s", w.Category, w.Message)
}

// bedrockRegions lists AWS regions where Bedrock runtime is available.
var bedrockRegions = map[string]bool{
	"us-east-1":      true,
	"us-east-2":      true,
	"us-west-2":      true,
	"ca-central-1":   true,
	"eu-central-1":   true,
	"eu-west-1":      true,
	"eu-west-2":      true,
	"eu-west-3":      true,
	"ap-northeast-1": true,
	"ap-south-1":     true,
	"ap-southeast-1": true,
	"ap-southeast-2": true,
	"sa-east-1":      true,
}

// cloudControlUnavailable lists partitions where Cloud Control is not offered.
var cloudControlUnavailable = []string{"cn-", "us-iso"}

// typicalProvisioningWindow is how long common resources take to settle.
const typicalProvisioningWindow = 5 * time.Minute

// DiagnoseConfig checks the configuration for common misconfigurations and
// returns warnings. Unlike Validate, these are non-fatal.
func DiagnoseConfig(cfg *Config) []DiagnosticWarning {
	var warnings []DiagnosticWarning
	warnings = append(warnings, diagnoseRegion(cfg)...)
	warnings = append(warnings, diagnosePollWindow(cfg)...)
	warnings = append(warnings, diagnoseModel(cfg)...)
	return warnings
}

// diagnoseRegion checks for regions lacking Cloud Control or Bedrock.
func diagnoseRegion(cfg *Config) []DiagnosticWarning {
	if cfg.Region == "" {
		return nil
	}
	var warnings []DiagnosticWarning
	for _, prefix := range cloudControlUnavailable {
		if strings.HasPrefix(cfg.Region, prefix) {
			warnings = append(warnings, DiagnosticWarning{
				Category: ErrCategoryConfiguration,
				Message:  fmt.Sprintf("region %q may not support the Cloud Control API", cfg.Region),
				Hint:     "use a commercial AWS region such as us-east-1",
			})
		}
	}
	if (cfg.ModelProvider == "" || cfg.ModelProvider == ModelProviderBedrock) && !bedrockRegions[cfg.Region] {
		warnings = append(warnings, DiagnosticWarning{
			Category: ErrCategoryConfiguration,
			Message:  fmt.Sprintf("region %q may not support Bedrock runtime", cfg.Region),
			Hint:     fmt.Sprintf("supported regions: %s", joinMapKeys(bedrockRegions)),
		})
	}
	return warnings
}

// diagnosePollWindow warns when the whole poll session is shorter than
// typical provisioning times.
func diagnosePollWindow(cfg *Config) []DiagnosticWarning {
	window := PollWindow(cfg.Backoff(), cfg.MaxAttempts)
	if window >= typicalProvisioningWindow {
		return nil
	}
	return []DiagnosticWarning{{
		Category: ErrCategoryTimeout,
		Message: fmt.Sprintf("poll session waits at most ~%s across %d attempts",
			window.Round(time.Second), cfg.MaxAttempts),
		Hint: "many resources take several minutes; raise max_attempts or seed_wait, or re-run status later",
	}}
}

// diagnoseModel checks model provider settings.
func diagnoseModel(cfg *Config) []DiagnosticWarning {
	if cfg.ModelProvider != ModelProviderOpenAI {
		return nil
	}
	var warnings []DiagnosticWarning
	if cfg.ModelAPIKey == "" {
		warnings = append(warnings, DiagnosticWarning{
			Category: ErrCategoryPermission,
			Message:  "model_provider is openai but no API key is configured",
			Hint:     "set OPENAI_API_KEY or model_api_key (local endpoints may not need one)",
		})
	}
	if cfg.ModelEndpoint != "" && strings.HasPrefix(cfg.ModelEndpoint, "http://") &&
		!strings.Contains(cfg.ModelEndpoint, "localhost") && !strings.Contains(cfg.ModelEndpoint, "127.0.0.1") {
		warnings = append(warnings, DiagnosticWarning{
			Category: ErrCategoryNetwork,
			Message:  "model_endpoint uses plain HTTP to a remote host",
			Hint:     "use https:// so the API key is not sent in clear text",
		})
	}
	return warnings
}

// PollWindow returns the minimum total wait of a session that never reaches
// a terminal status, ignoring jitter and query latency.
func PollWindow(b Backoff, maxAttempts int) time.Duration {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	noJitter := b
	noJitter.Jitter = func() float64 { return 0 }
	var total time.Duration
	wait := noJitter.SeedWait()
	for attempt := 0; attempt < maxAttempts-1; attempt++ {
		total += wait
		wait = noJitter.NextWait(attempt, wait)
	}
	return total
}

// joinMapKeys returns sorted map keys joined with ", ".
func joinMapKeys(m map[string]bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ", ")
}
