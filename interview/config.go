package interview

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable knob of the engine. The zero value of any
// field means "use the default", so a partial YAML file is valid.
type Config struct {
	// LMTimeout bounds each individual language-model attempt.
	LMTimeout time.Duration `yaml:"lm_timeout"`

	// SandboxTimeout bounds each code execution, wall clock.
	SandboxTimeout time.Duration `yaml:"sandbox_timeout"`

	// StepTimeout bounds one whole ExecuteStep, all calls included.
	StepTimeout time.Duration `yaml:"step_timeout"`

	// IntentConfidenceThreshold is the minimum confidence at which a
	// detected intent becomes the active user request.
	IntentConfidenceThreshold float64 `yaml:"intent_confidence_threshold"`

	// DupQuestionOverlapThreshold is the token-overlap ratio at or above
	// which a candidate question counts as a duplicate.
	DupQuestionOverlapThreshold float64 `yaml:"dup_question_overlap_threshold"`

	// EvaluationTurnThreshold is the user-turn count after which the
	// policy may cut over to the final evaluation.
	EvaluationTurnThreshold int `yaml:"evaluation_turn_threshold"`

	// CodeMaxBytes caps submitted code size, checked before any sandbox
	// call.
	CodeMaxBytes int `yaml:"code_max_bytes"`

	// OutputTruncateBytes caps captured stdout and stderr, each.
	OutputTruncateBytes int `yaml:"output_truncate_bytes"`

	// StatusPollInterval is how often the manager polls interview rows
	// for completed sessions to release.
	StatusPollInterval time.Duration `yaml:"status_poll_interval"`

	// MaxNodeVisits aborts a run that keeps routing without terminating.
	MaxNodeVisits int `yaml:"max_node_visits"`
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		LMTimeout:                   15 * time.Second,
		SandboxTimeout:              30 * time.Second,
		StepTimeout:                 60 * time.Second,
		IntentConfidenceThreshold:   0.7,
		DupQuestionOverlapThreshold: 0.8,
		EvaluationTurnThreshold:     20,
		CodeMaxBytes:                100_000,
		OutputTruncateBytes:         65_536,
		StatusPollInterval:          5 * time.Second,
		MaxNodeVisits:               25,
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LMTimeout == 0 {
		c.LMTimeout = def.LMTimeout
	}
	if c.SandboxTimeout == 0 {
		c.SandboxTimeout = def.SandboxTimeout
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = def.StepTimeout
	}
	if c.IntentConfidenceThreshold == 0 {
		c.IntentConfidenceThreshold = def.IntentConfidenceThreshold
	}
	if c.DupQuestionOverlapThreshold == 0 {
		c.DupQuestionOverlapThreshold = def.DupQuestionOverlapThreshold
	}
	if c.EvaluationTurnThreshold == 0 {
		c.EvaluationTurnThreshold = def.EvaluationTurnThreshold
	}
	if c.CodeMaxBytes == 0 {
		c.CodeMaxBytes = def.CodeMaxBytes
	}
	if c.OutputTruncateBytes == 0 {
		c.OutputTruncateBytes = def.OutputTruncateBytes
	}
	if c.StatusPollInterval == 0 {
		c.StatusPollInterval = def.StatusPollInterval
	}
	if c.MaxNodeVisits == 0 {
		c.MaxNodeVisits = def.MaxNodeVisits
	}
	return c
}

// Validate checks the configuration after defaulting and reports every
// problem at once via errors.Join.
func (c Config) Validate() error {
	var errs []error
	if c.LMTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lm_timeout must be positive, got %v", c.LMTimeout))
	}
	if c.SandboxTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox_timeout must be positive, got %v", c.SandboxTimeout))
	}
	if c.StepTimeout <= 0 {
		errs = append(errs, fmt.Errorf("step_timeout must be positive, got %v", c.StepTimeout))
	}
	if c.IntentConfidenceThreshold < 0 || c.IntentConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("intent_confidence_threshold must be in [0,1], got %v", c.IntentConfidenceThreshold))
	}
	if c.DupQuestionOverlapThreshold <= 0 || c.DupQuestionOverlapThreshold > 1 {
		errs = append(errs, fmt.Errorf("dup_question_overlap_threshold must be in (0,1], got %v", c.DupQuestionOverlapThreshold))
	}
	if c.EvaluationTurnThreshold < 1 {
		errs = append(errs, fmt.Errorf("evaluation_turn_threshold must be at least 1, got %d", c.EvaluationTurnThreshold))
	}
	if c.CodeMaxBytes < 1 {
		errs = append(errs, fmt.Errorf("code_max_bytes must be at least 1, got %d", c.CodeMaxBytes))
	}
	if c.OutputTruncateBytes < 1 {
		errs = append(errs, fmt.Errorf("output_truncate_bytes must be at least 1, got %d", c.OutputTruncateBytes))
	}
	if c.StatusPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("status_poll_interval must be positive, got %v", c.StatusPollInterval))
	}
	if c.MaxNodeVisits < 1 {
		errs = append(errs, fmt.Errorf("max_node_visits must be at least 1, got %d", c.MaxNodeVisits))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML configuration file, fills defaults, and
// validates. Unknown keys are an error so typos fail fast.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadConfigReader(f)
}

// LoadConfigReader is LoadConfig over an arbitrary reader.
func LoadConfigReader(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}
