package permission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative configuration: engine tuning plus optional seed
// data for the catalog and grant tables (used by dev setups and tests; the
// Identity service normally seeds through its own migrations).
type Config struct {
	Engine      EngineConfig     `json:"engine" yaml:"engine"`
	Permissions []Permission     `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	Roles       []Role           `json:"roles,omitempty" yaml:"roles,omitempty"`
	Grants      []RolePermission `json:"grants,omitempty" yaml:"grants,omitempty"`
}

// EngineConfig tunes runtime behavior.
type EngineConfig struct {
	CacheTTLMs           int64  `json:"cache_ttl_ms" yaml:"cache_ttl_ms"`
	RistrettoNumCounters int64  `json:"ristretto_num_counters" yaml:"ristretto_num_counters"`
	RistrettoMaxCost     int64  `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer      int64  `json:"ristretto_buffer" yaml:"ristretto_buffer"`
	AuditBufferSize      int    `json:"audit_buffer_size" yaml:"audit_buffer_size"`
	InvalidationChannel  string `json:"invalidation_channel" yaml:"invalidation_channel"`
}

// CacheConfig converts the tuning block into cache sizing, falling back to
// defaults for unset fields.
func (c EngineConfig) CacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()
	if c.CacheTTLMs > 0 {
		cfg.TTL = time.Duration(c.CacheTTLMs) * time.Millisecond
	}
	if c.RistrettoNumCounters > 0 {
		cfg.NumCounters = c.RistrettoNumCounters
	}
	if c.RistrettoMaxCost > 0 {
		cfg.MaxCost = c.RistrettoMaxCost
	}
	if c.RistrettoBuffer > 0 {
		cfg.BufferItems = c.RistrettoBuffer
	}
	return cfg
}

// ConfigLoader parses configuration files.
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader { return &ConfigLoader{} }

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse yaml config: %w", err)
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse json config: %w", err)
	}
	return cfg, nil
}

func (c *Config) ToYAML() ([]byte, error) { return yaml.Marshal(c) }

func (c *Config) ToJSON() ([]byte, error) { return json.MarshalIndent(c, "", "  ") }

// Validate checks referential integrity of the seed data and eagerly parses
// every Conditions blob, so a broken config fails at load instead of
// silently disabling grants at request time.
func (c *Config) Validate() error {
	perms := make(map[string]*Permission, len(c.Permissions))
	for i := range c.Permissions {
		p := &c.Permissions[i]
		if p.ID == "" || p.Name == "" {
			return fmt.Errorf("permission %d: id and name are required", i)
		}
		if _, dup := perms[p.ID]; dup {
			return fmt.Errorf("duplicate permission id %s", p.ID)
		}
		perms[p.ID] = p
	}
	for id, p := range perms {
		if p.ParentID == "" {
			continue
		}
		if _, ok := perms[p.ParentID]; !ok {
			return fmt.Errorf("permission %s: unknown parent %s", id, p.ParentID)
		}
	}
	roles := make(map[string]bool, len(c.Roles))
	for i := range c.Roles {
		r := &c.Roles[i]
		if r.ID == "" {
			return fmt.Errorf("role %d: id is required", i)
		}
		if roles[r.ID] {
			return fmt.Errorf("duplicate role id %s", r.ID)
		}
		roles[r.ID] = true
	}
	for i := range c.Grants {
		g := &c.Grants[i]
		if !roles[g.RoleID] {
			return fmt.Errorf("grant %d: unknown role %s", i, g.RoleID)
		}
		if _, ok := perms[g.PermissionID]; !ok {
			return fmt.Errorf("grant %d: unknown permission %s", i, g.PermissionID)
		}
		if g.Conditions != "" {
			if _, err := ParsePredicate(g.Conditions); err != nil {
				return fmt.Errorf("grant %d: %w", i, err)
			}
		}
	}
	return nil
}

// GrantWriter is the write side of a seedable store.
type GrantWriter interface {
	SavePermission(ctx context.Context, p Permission) error
	SaveRole(ctx context.Context, r Role) error
	SaveGrant(ctx context.Context, g RolePermission) error
	RevokeGrant(ctx context.Context, roleID, permissionID, groupID string) error
}

// ApplyConfig seeds the store from the config, then reloads the catalog and
// flushes the cache.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config, w GrantWriter) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, p := range cfg.Permissions {
		if err := w.SavePermission(ctx, p); err != nil {
			return fmt.Errorf("seed permission %s: %w", p.ID, err)
		}
	}
	for _, r := range cfg.Roles {
		if err := w.SaveRole(ctx, r); err != nil {
			return fmt.Errorf("seed role %s: %w", r.ID, err)
		}
	}
	for _, g := range cfg.Grants {
		if err := w.SaveGrant(ctx, g); err != nil {
			return fmt.Errorf("seed grant %s/%s: %w", g.RoleID, g.PermissionID, err)
		}
	}
	return e.ReloadCatalog(ctx)
}
