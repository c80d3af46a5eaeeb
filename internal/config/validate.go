package config

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// ValidationError reports a setting rejected by the schema.
type ValidationError struct {
	Message string
	Pos     token.Pos
}

func (e *ValidationError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: invalid config: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "invalid config: " + e.Message
}

// schemaView is the shape checked against #Config.
type schemaView struct {
	DataDir           string  `json:"data_dir"`
	Database          string  `json:"database"`
	BaseURL           string  `json:"base_url"`
	Token             string  `json:"token"`
	ProbeURL          string  `json:"probe_url"`
	Link              string  `json:"link"`
	DrainIntervalMS   int64   `json:"drain_interval_ms"`
	DeliveryTimeoutMS int64   `json:"delivery_timeout_ms"`
	MaxAttempts       int     `json:"max_attempts"`
	RateLimit         float64 `json:"rate_limit"`
	RateBurst         int     `json:"rate_burst"`
	Listen            string  `json:"listen"`
	LogLevel          string  `json:"log_level"`
}

// Validate checks cfg against the embedded CUE schema.
func Validate(cfg Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	val := ctx.Encode(schemaView{
		DataDir:           cfg.DataDir,
		Database:          cfg.Database,
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		ProbeURL:          cfg.ProbeURL,
		Link:              cfg.Link,
		DrainIntervalMS:   cfg.DrainInterval.Milliseconds(),
		DeliveryTimeoutMS: cfg.DeliveryTimeout.Milliseconds(),
		MaxAttempts:       cfg.MaxAttempts,
		RateLimit:         cfg.RateLimit,
		RateBurst:         cfg.RateBurst,
		Listen:            cfg.Listen,
		LogLevel:          cfg.LogLevel,
	})
	return formatCUEError(def.Unify(val).Validate(cue.Concrete(true)))
}

// formatCUEError keeps the first CUE error with its position.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &ValidationError{Message: err.Error()}
	}
	first := errs[0]
	verr := &ValidationError{Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		verr.Pos = positions[0]
	}
	return verr
}
