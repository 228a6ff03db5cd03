package bsonfilter

import (
	"context"
	"maps"

	"github.com/sourcegraph/conc/iter"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter/internal/log"
)

// Compiler compiles CEL predicate text into filter documents for the types
// known to a Lookup.  A Compiler is safe for concurrent use.
type Compiler struct {
	lookup Lookup
	parser PredicateParser
	param  string
	locals map[string]any
}

func NewCompiler(lookup Lookup, opts ...Option) (*Compiler, error) {
	c, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	return &Compiler{
		lookup: lookup,
		parser: NewPredicateParser(c.parser),
		param:  c.param,
		locals: c.locals,
	}, nil
}

// Compile compiles expr, in which the compiler's root parameter refers to a
// document of the named type.
func (c *Compiler) Compile(ctx context.Context, typeName, expr string) (bson.D, error) {
	return c.CompileSource(ctx, Source{Type: typeName, Expr: expr})
}

// CompileSource compiles a Source.  Its Param defaults to the compiler's root
// parameter, and its Locals are layered over the compiler's.
func (c *Compiler) CompileSource(ctx context.Context, src Source) (bson.D, error) {
	if src.Param == "" {
		src.Param = c.param
	}
	if len(c.locals) > 0 {
		locals := maps.Clone(c.locals)
		maps.Copy(locals, src.Locals)
		src.Locals = locals
	}

	ctx = log.AddTags(ctx, "type", src.Type)

	pred, err := c.parser.Parse(ctx, src)
	if err != nil {
		log.Debugw(ctx, "failed to parse predicate", "expr", src.Expr, "error", err)
		return nil, err
	}
	filter, err := Compile(pred, c.lookup)
	if err != nil {
		log.Debugw(ctx, "failed to compile predicate", "predicate", pred.String(), "error", err)
		return nil, err
	}
	log.Debugw(ctx, "compiled predicate", "predicate", pred.String(), "filter", filter)
	return filter, nil
}

// CompileAll compiles a batch of expressions over the same type concurrently.
// Results are in the order of exprs.  All errors are joined.
func (c *Compiler) CompileAll(ctx context.Context, typeName string, exprs []string) ([]bson.D, error) {
	return iter.MapErr(exprs, func(expr *string) (bson.D, error) {
		return c.Compile(ctx, typeName, *expr)
	})
}
