// Package config holds the rescue pipeline configuration: model settings,
// collaborator endpoints, escalation thresholds, and communication defaults.
// Configuration loads from a YAML file with environment overrides applied on
// top; every field has a documented default so the pipeline runs without a
// config file at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all rescue pipeline configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Decision-support model
	LLM LLMConfig `yaml:"llm"`

	// Escalation business rules
	Escalation EscalationConfig `yaml:"escalation"`

	// External collaborator endpoints
	Collaborators CollaboratorsConfig `yaml:"collaborators"`

	// Customer communication
	Communication CommunicationConfig `yaml:"communication"`

	// Policy knowledge base
	Policy PolicyConfig `yaml:"policy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the decision-support model client.
type LLMConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// EscalationConfig holds the high-value-customer thresholds used by triage.
// These are business constants with documented defaults, not a rule engine.
type EscalationConfig struct {
	// LTVThreshold is the lifetime value above which a customer counts as
	// high-value regardless of tier.
	LTVThreshold float64 `yaml:"ltv_threshold"`

	// HighValueTiers are the tier names that count as high-value regardless
	// of lifetime value.
	HighValueTiers []string `yaml:"high_value_tiers"`
}

// CollaboratorsConfig configures the external system endpoints.
type CollaboratorsConfig struct {
	CRMBaseURL       string `yaml:"crm_base_url"`
	InventoryBaseURL string `yaml:"inventory_base_url"`
	PaymentBaseURL   string `yaml:"payment_base_url"`
	TranscriptURL    string `yaml:"transcript_base_url"`
	EmailEndpoint    string `yaml:"email_endpoint"`
	SMSBaseURL       string `yaml:"sms_base_url"`
	Timeout          string `yaml:"timeout"`
}

// CommunicationConfig configures customer-facing messaging.
type CommunicationConfig struct {
	FromEmail    string `yaml:"from_email"`
	FromPhone    string `yaml:"from_phone"`
	SMSAccountID string `yaml:"sms_account_id"`
	SMSMaxLength int    `yaml:"sms_max_length"`
}

// PolicyConfig configures the policy knowledge-base search backend.
type PolicyConfig struct {
	// DocsDir is an optional directory of policy documents (.md/.txt) that
	// extends the built-in corpus.
	DocsDir string `yaml:"docs_dir"`
	TopK    int    `yaml:"top_k"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "cxrescue",
		Version: "1.0.0",

		LLM: LLMConfig{
			Model:   "gemini-1.5-pro",
			BaseURL: "https://generativelanguage.googleapis.com/v1beta",
			Timeout: "30s",
		},

		Escalation: EscalationConfig{
			LTVThreshold:   500,
			HighValueTiers: []string{"Gold", "VIP", "Premium"},
		},

		Collaborators: CollaboratorsConfig{
			CRMBaseURL:       "https://api.yourcrm.com",
			InventoryBaseURL: "https://api.yourinventory.com",
			PaymentBaseURL:   "https://api.stripe.com",
			TranscriptURL:    "https://api.yourtranscripts.com",
			EmailEndpoint:    "https://api.sendgrid.com/v3/mail/send",
			SMSBaseURL:       "https://api.twilio.com",
			Timeout:          "30s",
		},

		Communication: CommunicationConfig{
			FromEmail:    "support@yourcompany.com",
			FromPhone:    "+1234567890",
			SMSMaxLength: 160,
		},

		Policy: PolicyConfig{
			TopK: 5,
		},

		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults when the
// file does not exist. Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if model := os.Getenv("CXRESCUE_MODEL"); model != "" {
		c.LLM.Model = model
	}

	if url := os.Getenv("CRM_API_BASE_URL"); url != "" {
		c.Collaborators.CRMBaseURL = url
	}
	if url := os.Getenv("INVENTORY_API_BASE_URL"); url != "" {
		c.Collaborators.InventoryBaseURL = url
	}
	if url := os.Getenv("PAYMENT_API_BASE_URL"); url != "" {
		c.Collaborators.PaymentBaseURL = url
	}
	if url := os.Getenv("TRANSCRIPT_API_BASE_URL"); url != "" {
		c.Collaborators.TranscriptURL = url
	}

	if email := os.Getenv("SUPPORT_FROM_EMAIL"); email != "" {
		c.Communication.FromEmail = email
	}
	if phone := os.Getenv("SUPPORT_FROM_PHONE"); phone != "" {
		c.Communication.FromPhone = phone
	}
	if sid := os.Getenv("TWILIO_ACCOUNT_SID"); sid != "" {
		c.Communication.SMSAccountID = sid
	}

	if dir := os.Getenv("POLICY_DOCS_DIR"); dir != "" {
		c.Policy.DocsDir = dir
	}
}

// GetLLMTimeout returns the model call timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetCollaboratorTimeout returns the collaborator HTTP timeout as a duration.
func (c *Config) GetCollaboratorTimeout() time.Duration {
	d, err := time.ParseDuration(c.Collaborators.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IsHighValueTier reports whether the given tier counts as high-value.
func (c *Config) IsHighValueTier(tier string) bool {
	for _, t := range c.Escalation.HighValueTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("model API key not configured (set GEMINI_API_KEY or llm.api_key)")
	}
	if c.Escalation.LTVThreshold < 0 {
		return fmt.Errorf("ltv_threshold must be non-negative, got %v", c.Escalation.LTVThreshold)
	}
	if c.Communication.SMSMaxLength <= 3 {
		return fmt.Errorf("sms_max_length too small: %d", c.Communication.SMSMaxLength)
	}
	return nil
}
