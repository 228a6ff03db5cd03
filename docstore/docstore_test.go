package docstore

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble/v2/vfs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter"
)

type item struct {
	ID    int32    `bson:"_id"`
	Name  string   `bson:"name"`
	Qty   int64    `bson:"qty"`
	Tags  []string `bson:"tags"`
	Parts []part   `bson:"parts"`
}

type part struct {
	SKU string `bson:"sku"`
	Qty int32  `bson:"qty"`
}

var items = []item{
	{ID: 1, Name: "Widget", Qty: 12, Tags: []string{"red", "blue"}, Parts: []part{{SKU: "p-1", Qty: 3}}},
	{ID: 2, Name: "Gadget", Qty: 0, Tags: []string{"blue"}, Parts: []part{{SKU: "p-2", Qty: 7}, {SKU: "p-3", Qty: 1}}},
	{ID: 3, Name: "Gizmo", Qty: 5, Tags: []string{}, Parts: nil},
}

func newCompiler(t *testing.T) *bsonfilter.Compiler {
	t.Helper()
	r := bsonfilter.NewRegistry()
	require.NoError(t, r.Register("Item", item{}))
	c, err := bsonfilter.NewCompiler(r, bsonfilter.WithParam("i"))
	require.NoError(t, err)
	return c
}

// collections returns a fresh instance of each collection implementation.
func collections(t *testing.T) map[string]Collection {
	t.Helper()
	ctx := context.Background()

	p, err := OpenPebble(ctx, "db", WithFS(vfs.NewMem()), WithSync(false))
	require.NoError(t, err)

	colls := map[string]Collection{
		"memory": NewMemory(),
		"pebble": p,
	}
	t.Cleanup(func() {
		for _, c := range colls {
			_ = c.Close()
		}
	})
	return colls
}

func TestCollections(t *testing.T) {
	ctx := context.Background()
	compiler := newCompiler(t)

	counts := []struct {
		expr     string
		expected int
	}{
		{`i.Name == "Widget"`, 1},
		{`i.Qty > 0`, 2},
		{`i.Qty >= 0 && i.Qty < 10`, 2},
		{`i.Tags.contains("blue")`, 2},
		{`i.Tags.size() == 0`, 1},
		{`i.Tags.exists()`, 2},
		{`i.Parts.exists(p, p.Qty > 5)`, 1},
		{`i.Parts.exists(p, p.SKU.startsWith("p-") && p.Qty < 2)`, 1},
		{`i.ID in [1, 3]`, 2},
		{`!(i.ID in [1, 3])`, 1},
		{`i.Name.matches("^G")`, 2},
		{`!i.Name.endsWith("et")`, 1},
		{`i.Qty % 2 == 0`, 2},
		{`i.Parts[1].SKU == "p-3"`, 1},
	}

	for name, coll := range collections(t) {
		t.Run(name, func(t *testing.T) {
			docs := make([]any, len(items))
			for i := range items {
				docs[i] = items[i]
			}
			ids, err := coll.Insert(ctx, docs...)
			require.NoError(t, err)
			require.Equal(t, []any{int32(1), int32(2), int32(3)}, ids)

			for _, test := range counts {
				t.Run(test.expr, func(t *testing.T) {
					filter, err := compiler.Compile(ctx, "Item", test.expr)
					require.NoError(t, err)
					n, err := coll.Count(ctx, filter)
					require.NoError(t, err)
					require.Equal(t, test.expected, n, "filter %v", filter)
				})
			}

			t.Run("find returns the stored documents", func(t *testing.T) {
				found, err := FindWhere(ctx, coll, compiler, "Item", `i.Name == "Gadget"`)
				require.NoError(t, err)
				require.Len(t, found, 1)

				var out item
				require.NoError(t, bson.Unmarshal(found[0], &out))
				require.Equal(t, items[1], out)
			})

			t.Run("an empty filter finds everything", func(t *testing.T) {
				n, err := coll.Count(ctx, bson.D{})
				require.NoError(t, err)
				require.Equal(t, len(items), n)
			})

			t.Run("compile errors are returned", func(t *testing.T) {
				_, err := FindWhere(ctx, coll, compiler, "Item", `i.Missing == 1`)
				require.ErrorIs(t, err, bsonfilter.ErrUnresolvableField)
			})

			t.Run("duplicate ids are rejected", func(t *testing.T) {
				_, err := coll.Insert(ctx, item{ID: 1, Name: "Again"})
				require.ErrorIs(t, err, ErrDuplicateID)

				_, err = coll.Insert(ctx, item{ID: 9}, item{ID: 9})
				require.ErrorIs(t, err, ErrDuplicateID)

				// A failed batch stores nothing.
				n, err := coll.Count(ctx, bson.D{})
				require.NoError(t, err)
				require.Equal(t, len(items), n)
			})

			t.Run("documents without ids are assigned one", func(t *testing.T) {
				ids, err := coll.Insert(ctx, bson.D{{Key: "name", Value: "Anon"}})
				require.NoError(t, err)
				require.Len(t, ids, 1)
				id, ok := ids[0].(string)
				require.True(t, ok)
				_, err = uuid.Parse(id)
				require.NoError(t, err)

				found, err := coll.Find(ctx, bson.D{{Key: "name", Value: "Anon"}})
				require.NoError(t, err)
				require.Len(t, found, 1)
				require.Equal(t, id, found[0].Lookup("_id").StringValue())
			})

			t.Run("closed collections return errors", func(t *testing.T) {
				require.NoError(t, coll.Close())
				_, err := coll.Count(ctx, bson.D{})
				require.ErrorIs(t, err, ErrClosed)
				_, err = coll.Insert(ctx, item{ID: 10})
				require.ErrorIs(t, err, ErrClosed)
			})
		})
	}
}

func TestPebbleReopen(t *testing.T) {
	ctx := context.Background()
	fs := vfs.NewMem()

	p, err := OpenPebble(ctx, "db", WithFS(fs))
	require.NoError(t, err)
	_, err = p.Insert(ctx, items[0], items[1])
	require.NoError(t, err)
	require.NoError(t, p.Close())

	p, err = OpenPebble(ctx, "db", WithFS(fs))
	require.NoError(t, err)
	defer p.Close()

	n, err := p.Count(ctx, bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: int64(1)}}}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = p.Insert(ctx, items[0])
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestPebbleLogger(t *testing.T) {
	l := pebbleLogger{ctx: context.Background()}

	t.Run("info and error records return", func(t *testing.T) {
		require.NotPanics(t, func() {
			l.Infof("opened %s", "db")
			l.Errorf("background error: %d", 1)
		})
	})

	t.Run("fatal records do not return", func(t *testing.T) {
		require.PanicsWithValue(t, "corrupt manifest 7", func() {
			l.Fatalf("corrupt manifest %d", 7)
		})
	})
}
