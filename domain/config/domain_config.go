package config

import (
	"errors"
	"fmt"
)

// DomainConfig holds the business rules applied to idea canvas nodes.
type DomainConfig struct {
	// Defaults for the "add node" action
	DefaultTitle   string  `yaml:"default_title"`
	DefaultContent string  `yaml:"default_content"`
	DefaultType    string  `yaml:"default_type"`
	DefaultWidth   float64 `yaml:"default_width"`
	DefaultHeight  float64 `yaml:"default_height"`
	// New nodes without a position land uniformly in [0, SpawnExtent) on both axes
	SpawnExtent float64 `yaml:"spawn_extent"`

	// Node constraints
	MaxTitleLength        int `yaml:"max_title_length"`
	MaxContentLength      int `yaml:"max_content_length"`
	MaxTypeLength         int `yaml:"max_type_length"`
	MaxConnectionsPerNode int `yaml:"max_connections_per_node"`
	MaxNodesPerIdea       int `yaml:"max_nodes_per_idea"`

	// Connection semantics
	AllowSelfConnections      bool `yaml:"allow_self_connections"`
	DedupeConnections         bool `yaml:"dedupe_connections"`
	ValidateConnectionTargets bool `yaml:"validate_connection_targets"`
	ScrubDanglingOnDelete     bool `yaml:"scrub_dangling_on_delete"`

	// Read-modify-write attempts when a conditional write loses a race
	MaxWriteRetries int `yaml:"max_write_retries"`
}

// DefaultDomainConfig keeps connection lists as plain lists: duplicates are
// allowed and deletes leave references in other nodes untouched.
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		DefaultTitle:   "New Idea",
		DefaultContent: "",
		DefaultType:    "default",
		DefaultWidth:   200,
		DefaultHeight:  100,
		SpawnExtent:    500,

		MaxTitleLength:        200,
		MaxContentLength:      50000,
		MaxTypeLength:         64,
		MaxConnectionsPerNode: 500,
		MaxNodesPerIdea:       5000,

		AllowSelfConnections:      true,
		DedupeConnections:         false,
		ValidateConnectionTargets: false,
		ScrubDanglingOnDelete:     false,

		MaxWriteRetries: 3,
	}
}

// ProductionDomainConfig enforces set semantics and referential integrity.
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxContentLength = 20000
	config.MaxConnectionsPerNode = 200
	config.DedupeConnections = true
	config.ScrubDanglingOnDelete = true
	config.ValidateConnectionTargets = true

	return config
}

// DevelopmentDomainConfig is permissive.
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	config.MaxNodesPerIdea = 100000
	config.MaxConnectionsPerNode = 5000

	return config
}

// LoadDomainConfig picks the preset for an environment name.
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Clone returns an independent copy.
func (c *DomainConfig) Clone() *DomainConfig {
	clone := *c
	return &clone
}

// Validate checks that limits and defaults are usable.
func (c *DomainConfig) Validate() error {
	var errs []error
	if c.DefaultWidth <= 0 || c.DefaultHeight <= 0 {
		errs = append(errs, fmt.Errorf("default size must be positive, got %vx%v", c.DefaultWidth, c.DefaultHeight))
	}
	if c.SpawnExtent < 0 {
		errs = append(errs, errors.New("spawn extent cannot be negative"))
	}
	if c.MaxTitleLength <= 0 || c.MaxContentLength <= 0 || c.MaxTypeLength <= 0 {
		errs = append(errs, errors.New("text length limits must be positive"))
	}
	if len(c.DefaultTitle) > c.MaxTitleLength {
		errs = append(errs, errors.New("default title exceeds max title length"))
	}
	if c.MaxConnectionsPerNode <= 0 {
		errs = append(errs, errors.New("max connections per node must be positive"))
	}
	if c.MaxNodesPerIdea <= 0 {
		errs = append(errs, errors.New("max nodes per idea must be positive"))
	}
	if c.MaxWriteRetries < 0 {
		errs = append(errs, errors.New("max write retries cannot be negative"))
	}
	return errors.Join(errs...)
}
