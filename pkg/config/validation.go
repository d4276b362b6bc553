package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs validation that struct tags cannot express.
func validateCustomRules(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == cfg.API.Addr {
		return fmt.Errorf("metrics: addr %q is already used by the api server", cfg.Metrics.Addr)
	}

	if cfg.API.DefaultPageSize > cfg.API.MaxPageSize {
		return fmt.Errorf("api: default_page_size %d exceeds max_page_size %d",
			cfg.API.DefaultPageSize, cfg.API.MaxPageSize)
	}

	if cfg.Blocks.Type == "s3" {
		if bucket, _ := cfg.Blocks.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("blocks.s3: bucket is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
