package bsonfilter

/*
Options for the Compiler.
*/

////////////////////////////////////////////////////////////////////////////////

import (
	"time"

	"github.com/karlseguin/ccache/v2"
)

// DefaultParam is the name of the root document in expressions compiled by a
// Compiler unless WithParam is given.
const DefaultParam = "doc"

type config struct {
	param     string
	locals    map[string]any
	parser    CELParser
	cacheSize int64
	cacheTTL  time.Duration
}

// Option is a function that modifies the Compiler configuration.
type Option func(*config)

// WithParam sets the identifier that refers to the root document, eg. "x" in
// `x.M.size() == 3`.
func WithParam(name string) Option {
	return func(c *config) {
		c.param = name
	}
}

// WithLocals sets values that expressions may reference by name, in the way a
// lambda closes over local variables.  Per-call locals given to CompileSource
// take precedence.
func WithLocals(locals map[string]any) Option {
	return func(c *config) {
		c.locals = locals
	}
}

// WithParser replaces the default caching CEL parser.
func WithParser(p CELParser) Option {
	return func(c *config) {
		c.parser = p
	}
}

// WithCacheSize sets the number of parsed expressions kept by the default
// caching parser.
func WithCacheSize(size int64) Option {
	return func(c *config) {
		c.cacheSize = size
	}
}

// WithCacheTTL sets how long the default caching parser keeps a parse.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.cacheTTL = ttl
	}
}

func newConfig(opts []Option) (config, error) {
	c := config{
		param:     DefaultParam,
		cacheSize: CacheSize,
		cacheTTL:  CacheTTL,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.parser == nil {
		env, err := NewEnv()
		if err != nil {
			return config{}, err
		}
		cache := ccache.New(ccache.Configure().MaxSize(c.cacheSize))
		c.parser = &cachingParser{env: env, cache: cache, ttl: c.cacheTTL}
	}
	return c, nil
}
