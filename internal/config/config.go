package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models remwork.yml.
type Config struct {
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
		DevLogin               bool   `yaml:"dev_login"`
	} `yaml:"auth"`
	Priorities map[string]PriorityEntry `yaml:"priorities"`
	Regions    []RegionEntry            `yaml:"regions"`
	RBAC       struct {
		Roles           map[string][]string `yaml:"roles"`            // role id -> actor ids
		RegionApprovers map[string][]string `yaml:"region_approvers"` // region id -> actor ids
	} `yaml:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// PriorityEntry seeds one PriorityConfig row.
type PriorityEntry struct {
	RequiresFinalApproval bool   `yaml:"requires_final_approval"`
	Description           string `yaml:"description"`
}

// RegionEntry seeds one model_regions registry row.
type RegionEntry struct {
	ModelID                  string `yaml:"model_id"`
	RegionID                 string `yaml:"region_id"`
	RequiresRegionalApproval bool   `yaml:"requires_regional_approval"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Statuses       []string `yaml:"statuses"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with rmw config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	for id, p := range c.Priorities {
		if id == "" {
			return fmt.Errorf("config.priorities contains empty priority id")
		}
		_ = p
	}
	for _, r := range c.Regions {
		if r.ModelID == "" || r.RegionID == "" {
			return fmt.Errorf("config.regions entries require model_id and region_id")
		}
	}
	for roleID, actors := range c.RBAC.Roles {
		if roleID == "" {
			return fmt.Errorf("config.rbac.roles contains empty role id")
		}
		for _, a := range actors {
			if a == "" {
				return fmt.Errorf("role %s has empty actor id", roleID)
			}
		}
	}
	for regionID, actors := range c.RBAC.RegionApprovers {
		if regionID == "" {
			return fmt.Errorf("config.rbac.region_approvers contains empty region id")
		}
		for _, a := range actors {
			if a == "" {
				return fmt.Errorf("region %s has empty approver id", regionID)
			}
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "remwork.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `auth:
  jwt_secret: ""
  allow_legacy_actor_header: true
  dev_login: false

priorities:
  critical:
    requires_final_approval: true
    description: "Material model risk; closure gated on global and regional sign-off"
  high:
    requires_final_approval: true
    description: "Significant finding; closure gated on final approval"
  medium:
    requires_final_approval: false
    description: "Closure review by the validator is sufficient"
  low:
    requires_final_approval: false
    description: "Closure review by the validator is sufficient"

regions: []

rbac:
  roles:
    validator: []
    admin: []
    global_approver: []
  region_approvers: {}

webhooks: []
`
