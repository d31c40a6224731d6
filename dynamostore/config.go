package dynamostore

import (
	"time"
)

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the entity table. Its hash key is the kind
	// attribute and its range key the name attribute, both strings.
	// Default: "arbor_entities"
	TableName string

	// KindAttribute holds the entity kind.
	// Default: "kind"
	KindAttribute string

	// NameAttribute holds the entity name.
	// Default: "name"
	NameAttribute string

	// TreeAttribute holds the entity tree as a nested map attribute.
	// Default: "tree"
	TreeAttribute string

	// MaxRetries bounds the resubmission of unprocessed items. Negative
	// disables retries.
	// Default: 5
	MaxRetries int

	// RetryDelay is the initial backoff before resubmitting unprocessed
	// items; it doubles on every attempt.
	// Default: 50ms
	RetryDelay time.Duration

	Logf    func(format string, args ...any)
	Verbose bool
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TableName:     "arbor_entities",
		KindAttribute: "kind",
		NameAttribute: "name",
		TreeAttribute: "tree",
		MaxRetries:    5,
		RetryDelay:    50 * time.Millisecond,
	}
}

// validate fills in defaults for unset values.
func (c *Config) validate() {
	def := DefaultConfig()
	if c.TableName == "" {
		c.TableName = def.TableName
	}
	if c.KindAttribute == "" {
		c.KindAttribute = def.KindAttribute
	}
	if c.NameAttribute == "" {
		c.NameAttribute = def.NameAttribute
	}
	if c.TreeAttribute == "" {
		c.TreeAttribute = def.TreeAttribute
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.Logf == nil {
		c.Logf = func(format string, args ...any) {}
	}
}
