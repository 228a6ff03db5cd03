package bsonfilter

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/cel-go/cel"
	"github.com/karlseguin/ccache/v2"
)

var (
	// CacheTTL is how long a parsed expression stays cached.
	CacheTTL = time.Hour
	// CacheSize is the number of parsed expressions cached by default.
	CacheSize int64 = 10_000
)

// NewCachingParser returns a CELParser which lifts quoted literals out of the
// expression and caches the parse of the normalized text, so that expressions
// which only differ by their literals are parsed once.
//
// If cache is nil, a cache holding CacheSize entries is created.
func NewCachingParser(env *cel.Env, cache *ccache.Cache) CELParser {
	if cache == nil {
		cache = ccache.New(ccache.Configure().MaxSize(CacheSize))
	}
	return &cachingParser{
		env:   env,
		cache: cache,
		ttl:   CacheTTL,
	}
}

type cachingParser struct {
	// cache maps hashed, normalized expressions to ParsedCelExpr.
	cache *ccache.Cache

	ttl time.Duration

	env *cel.Env

	hits   int64
	misses int64
}

// ParsedCelExpr is a cached parse.
type ParsedCelExpr struct {
	Expr   string
	AST    *cel.Ast
	Issues *cel.Issues
}

func (c *cachingParser) Parse(expr string) (*cel.Ast, *cel.Issues, LiftedArgs) {
	expr, vars := liftLiterals(expr)
	key := hashKey(expr)

	if item := c.cache.Get(key); item != nil && !item.Expired() {
		// Guard against hash collisions.
		if p, ok := item.Value().(ParsedCelExpr); ok && p.Expr == expr {
			atomic.AddInt64(&c.hits, 1)
			return p.AST, p.Issues, vars
		}
	}

	ast, issues := c.env.Parse(expr)
	c.cache.Set(key, ParsedCelExpr{
		Expr:   expr,
		AST:    ast,
		Issues: issues,
	}, c.ttl)

	atomic.AddInt64(&c.misses, 1)
	return ast, issues, vars
}

func (c *cachingParser) Hits() int64 {
	return atomic.LoadInt64(&c.hits)
}

func (c *cachingParser) Misses() int64 {
	return atomic.LoadInt64(&c.misses)
}

// hashKey hashes expressions with xxhash, keeping cache keys short and of a
// predictable size however long the expression is.
func hashKey(expr string) string {
	return strconv.FormatUint(xxhash.Sum64String(expr), 36)
}
