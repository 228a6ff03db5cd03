package bsonfilter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type testRoot struct {
	ID int32     `bson:"_id"`
	A  string    `bson:"A"`
	C  testC     `bson:"C"`
	G  []testG   `bson:"G"`
	K  bool      `bson:"K"`
	L  []int32   `bson:"L"`
	M  []int32   `bson:"M"`
	O  []int64   `bson:"O"`
	P  float64   `bson:"P"`
	S  *testRoot `bson:"S,omitempty"`
}

type testC struct {
	D string `bson:"D"`
	E testE  `bson:"E"`
}

type testE struct {
	F int32    `bson:"F"`
	I []string `bson:"I"`
}

type testG struct {
	D string `bson:"D"`
	E testE  `bson:"E"`
}

// seed is the single document that compiled filters are replayed against.
var seed = testRoot{
	ID: 10,
	A:  "Awesome",
	C: testC{
		D: "Dexter",
		E: testE{F: 11, I: []string{"it", "icky"}},
	},
	G: []testG{
		{D: "Don't", E: testE{F: 33}},
		{D: "Dolphin", E: testE{F: 55}},
	},
	K: true,
	L: []int32{1, 3, 5},
	M: []int32{2, 4, 5},
	O: []int64{10, 20, 30},
	P: 2.5,
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register("Root", testRoot{}))
	return r
}

func newTestCompiler(t *testing.T, opts ...Option) *Compiler {
	t.Helper()
	c, err := NewCompiler(newTestRegistry(t), append([]Option{WithParam("x")}, opts...)...)
	require.NoError(t, err)
	return c
}

func compileExpr(t *testing.T, expr string) (bson.D, error) {
	t.Helper()
	return newTestCompiler(t).Compile(context.Background(), "Root", expr)
}
