package connector

import (
	"time"

	"github.com/Sternrassler/entity-connector/pkg/filter"
	"github.com/Sternrassler/entity-connector/pkg/pagination"
)

// Config holds connector-wide settings. Catalog rows override the page size
// defaults per entity.
type Config struct {
	// DefaultPageSize is used when neither the request nor the entity sets a size.
	DefaultPageSize int

	// MinPageSize and MaxPageSize bound page sizes for entities without their own bounds.
	MinPageSize int
	MaxPageSize int

	// MaxPages bounds FetchAll.
	MaxPages int

	// MaxConcurrency is the worker count for offset entities with exact totals.
	MaxConcurrency int

	// PageTimeout bounds a single page fetch in FetchAll.
	PageTimeout time.Duration

	// KeyPolicy encodes range operators for entities without operator templates.
	KeyPolicy filter.KeyPolicy
}

// DefaultConfig returns the default connector configuration.
func DefaultConfig() Config {
	return Config{
		DefaultPageSize: 100,
		MinPageSize:     1,
		MaxPageSize:     1000,
		MaxPages:        1000,
		MaxConcurrency:  4,
		PageTimeout:     30 * time.Second,
		KeyPolicy:       filter.BracketPolicy,
	}
}

func (c Config) batch() pagination.Config {
	return pagination.Config{
		MaxConcurrency: c.MaxConcurrency,
		Timeout:        c.PageTimeout,
		MaxPages:       c.MaxPages,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = d.DefaultPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = d.PageTimeout
	}
	if c.KeyPolicy == nil {
		c.KeyPolicy = d.KeyPolicy
	}
	return c
}
