package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/eurisko-info-lab/json-graphql-server/internal/datastore"
	"github.com/eurisko-info-lab/json-graphql-server/internal/naming"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Data.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)

	return result
}

func (d *DataConfig) validate(result *ValidationResult) {
	file := strings.TrimSpace(d.File)
	if file == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "data.file",
			Message: "a data file is required",
			Hint:    "pass the path as an argument, set data.file, or use @- to read stdin",
		})
	}

	if _, err := datastore.ParseFormat(d.Format); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "data.format",
			Message: err.Error(),
			Hint:    "valid values are: auto, json, yaml, msgpack",
		})
	}

	if d.ReloadMinInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "data.reload_min_interval",
			Message: "reload_min_interval cannot be negative",
		})
	}
	if d.ReloadMaxInterval < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "data.reload_max_interval",
			Message: "reload_max_interval cannot be negative",
		})
	}
	if d.ReloadMinInterval > 0 && d.ReloadMaxInterval > 0 && d.ReloadMaxInterval < d.ReloadMinInterval {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "data.reload_max_interval",
			Message: fmt.Sprintf("reload_max_interval %s is less than reload_min_interval %s", d.ReloadMaxInterval, d.ReloadMinInterval),
		})
	}

	if file == StdinSource {
		if d.Watch {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "data.watch",
				Message: "data read from stdin cannot be watched",
				Hint:    "point data.file at a file on disk to enable reloads",
			})
		}
		if d.ReloadMinInterval > 0 {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Field:   "data.reload_min_interval",
				Message: "data read from stdin is loaded once and never polled",
			})
		}
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	// Port range validation
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}

	if !strings.HasPrefix(s.GraphQLPath, "/") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.graphql_path",
			Message: fmt.Sprintf("graphql_path %q must start with /", s.GraphQLPath),
		})
	} else if reservedPath(s.GraphQLPath) {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.graphql_path",
			Message: fmt.Sprintf("graphql_path %q collides with a built-in endpoint", s.GraphQLPath),
			Hint:    "/health, /metrics and /admin/ are reserved",
		})
	}

	if s.MaxBodyBytes < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.max_body_bytes",
			Message: "max_body_bytes cannot be negative",
		})
	}

	if s.GraphiQLEnabled && s.PlaygroundEnabled {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.playground_enabled",
			Message: "both GraphiQL and Playground are enabled; GraphiQL is served",
		})
	}

	if s.Admin.ReloadEnabled && strings.TrimSpace(s.Admin.AuthToken) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.admin.auth_token",
			Message: "an admin auth token is required when the reload endpoint is enabled",
			Hint:    "set server.admin.auth_token or server.admin.auth_token_file",
		})
	}

	// Rate limit validation
	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_rps",
				Message: "rate_limit_rps must be greater than 0 when rate limiting is enabled",
			})
		}
		if s.RateLimitBurst <= 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.rate_limit_burst",
				Message: "rate_limit_burst must be greater than 0 when rate limiting is enabled",
			})
		}
	}

	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "server.rate_limit_enabled",
			Message: "rate limit values are set but rate limiting is disabled",
			Hint:    "enable server.rate_limit_enabled to apply rate limits",
		})
	}

	// CORS validation
	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "CORS enabled but no allowed origins configured",
				Hint:    "set cors_allowed_origins or disable CORS",
			})
		}

		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}

		if hasWildcard && s.CORSAllowCredentials {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "server.cors_allowed_origins",
				Message: "wildcard origin (*) cannot be used with credentials",
				Hint:    "use specific origins with credentials, or wildcard without credentials",
			})
		}
	}

	if s.CORSMaxAge < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.cors_max_age",
			Message: "cors_max_age cannot be negative",
		})
	}
}

func reservedPath(p string) bool {
	switch {
	case p == "/health", p == "/metrics":
		return true
	case strings.HasPrefix(p, "/admin/"), p == "/admin":
		return true
	}
	return false
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	check := func(field string, overrides map[string]string) {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: "override key cannot be empty",
				})
				continue
			}
			if strings.TrimSpace(to) == "" {
				result.Errors = append(result.Errors, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("override for %q cannot be empty", from),
				})
			}
		}
	}
	check("naming.plural_overrides", cfg.PluralOverrides)
	check("naming.singular_overrides", cfg.SingularOverrides)
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	// Log level validation
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}

	// Log format validation
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio),
		})
	}

	// OTLP protocol validation
	o.OTLP.validate("observability.otlp", result)

	// Signal-specific OTLP validation
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".protocol",
			Message: fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			Hint:    "valid values are: grpc, http/protobuf",
		})
	}

	if o.Protocol == "http/protobuf" {
		if !validOTLPEndpoint(o.Endpoint) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   prefix + ".endpoint",
				Message: fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				Hint:    "use host:port or a full URL",
			})
		}
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".compression",
			Message: fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			Hint:    "valid values are: none, gzip",
		})
	}

	if o.RetryMaxAttempts < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   prefix + ".retry_max_attempts",
			Message: "retry_max_attempts cannot be negative",
		})
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
