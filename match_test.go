package bsonfilter

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMatch(t *testing.T) {
	doc := bson.D{
		{Key: "_id", Value: "a"},
		{Key: "name", Value: "Widget"},
		{Key: "qty", Value: int32(12)},
		{Key: "price", Value: 2.5},
		{Key: "tags", Value: bson.A{"red", "blue"}},
		{Key: "sizes", Value: bson.A{}},
		{Key: "note", Value: nil},
		{Key: "parts", Value: bson.A{
			bson.D{{Key: "sku", Value: "p-1"}, {Key: "qty", Value: int64(3)}},
			bson.D{{Key: "sku", Value: "p-2"}, {Key: "qty", Value: int64(7)}},
		}},
		{Key: "owner", Value: bson.D{{Key: "name", Value: "Ann"}, {Key: "age", Value: int32(40)}}},
	}

	tests := []struct {
		name     string
		filter   bson.D
		expected bool
	}{
		{"an empty filter matches everything", bson.D{}, true},
		{"implicit equality", bson.D{{Key: "name", Value: "Widget"}}, true},
		{"numbers compare across widths", bson.D{{Key: "qty", Value: int64(12)}}, true},
		{"integers compare with doubles", bson.D{{Key: "qty", Value: 12.0}}, true},
		{"equality against an array matches elements", bson.D{{Key: "tags", Value: "blue"}}, true},
		{"equality against an array matches the whole array", bson.D{{Key: "tags", Value: bson.A{"red", "blue"}}}, true},
		{"array equality is ordered", bson.D{{Key: "tags", Value: bson.A{"blue", "red"}}}, false},
		{"null equals missing fields", bson.D{{Key: "missing", Value: nil}}, true},
		{"null equals null fields", bson.D{{Key: "note", Value: nil}}, true},
		{"null does not equal set fields", bson.D{{Key: "name", Value: nil}}, false},
		{"embedded documents compare field by field", bson.D{{Key: "owner", Value: bson.D{{Key: "name", Value: "Ann"}, {Key: "age", Value: 40}}}}, true},
		{"embedded documents must have the same fields", bson.D{{Key: "owner", Value: bson.D{{Key: "name", Value: "Ann"}}}}, false},
		{"dotted paths", bson.D{{Key: "owner.name", Value: "Ann"}}, true},
		{"dotted paths traverse arrays", bson.D{{Key: "parts.sku", Value: "p-2"}}, true},
		{"dotted paths index arrays", bson.D{{Key: "parts.1.sku", Value: "p-1"}}, false},
		{"$gt", bson.D{{Key: "qty", Value: bson.D{{Key: "$gt", Value: 11}}}}, true},
		{"$gte and $lte", bson.D{{Key: "qty", Value: bson.D{{Key: "$gte", Value: 12}, {Key: "$lte", Value: 12}}}}, true},
		{"$lt over array elements", bson.D{{Key: "parts.qty", Value: bson.D{{Key: "$lt", Value: 4}}}}, true},
		{"comparisons between types never match", bson.D{{Key: "name", Value: bson.D{{Key: "$gt", Value: 1}}}}, false},
		{"string comparisons", bson.D{{Key: "name", Value: bson.D{{Key: "$lt", Value: "Z"}}}}, true},
		{"$ne", bson.D{{Key: "name", Value: bson.D{{Key: "$ne", Value: "Gadget"}}}}, true},
		{"$ne against any array element", bson.D{{Key: "tags", Value: bson.D{{Key: "$ne", Value: "red"}}}}, false},
		{"$in", bson.D{{Key: "qty", Value: bson.D{{Key: "$in", Value: bson.A{1, 12}}}}}, true},
		{"$nin", bson.D{{Key: "tags", Value: bson.D{{Key: "$nin", Value: bson.A{"green"}}}}}, true},
		{"$size", bson.D{{Key: "tags", Value: bson.D{{Key: "$size", Value: int32(2)}}}}, true},
		{"$size of an empty array", bson.D{{Key: "sizes", Value: bson.D{{Key: "$size", Value: 0}}}}, true},
		{"$mod", bson.D{{Key: "qty", Value: bson.D{{Key: "$mod", Value: bson.A{int64(5), int64(2)}}}}}, true},
		{"$regex literals", bson.D{{Key: "name", Value: primitive.Regex{Pattern: "^wid", Options: "i"}}}, true},
		{"$regex with $options", bson.D{{Key: "name", Value: bson.D{{Key: "$regex", Value: "^wid"}, {Key: "$options", Value: "i"}}}}, true},
		{"$regex over array elements", bson.D{{Key: "tags", Value: primitive.Regex{Pattern: "^bl"}}}, true},
		{"$not with an operator", bson.D{{Key: "qty", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 20}}}}}}, true},
		{"$not with a pattern", bson.D{{Key: "name", Value: bson.D{{Key: "$not", Value: primitive.Regex{Pattern: "^W"}}}}}, false},
		{"$not matches missing fields", bson.D{{Key: "missing", Value: bson.D{{Key: "$not", Value: bson.D{{Key: "$gt", Value: 1}}}}}}, true},
		{"$exists", bson.D{{Key: "note", Value: bson.D{{Key: "$exists", Value: true}}}}, true},
		{"$exists false", bson.D{{Key: "missing", Value: bson.D{{Key: "$exists", Value: false}}}}, true},
		{"$elemMatch over documents", bson.D{{Key: "parts", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "sku", Value: "p-1"},
			{Key: "qty", Value: bson.D{{Key: "$gt", Value: 5}}},
		}}}}}, false},
		{"$elemMatch over scalars", bson.D{{Key: "tags", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$eq", Value: "red"}}}}}}, true},
		{"$elemMatch on an empty array", bson.D{{Key: "sizes", Value: bson.D{{Key: "$elemMatch", Value: bson.D{{Key: "$exists", Value: true}}}}}}, false},
		{"$and", bson.D{{Key: "$and", Value: bson.A{
			bson.D{{Key: "name", Value: "Widget"}},
			bson.D{{Key: "qty", Value: 12}},
		}}}, true},
		{"$or", bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "name", Value: "Gadget"}},
			bson.D{{Key: "qty", Value: 12}},
		}}}, true},
		{"$nor", bson.D{{Key: "$nor", Value: bson.A{
			bson.D{{Key: "name", Value: "Gadget"}},
			bson.D{{Key: "qty", Value: 12}},
		}}}, false},
		{"all conditions must match", bson.D{{Key: "name", Value: "Widget"}, {Key: "qty", Value: 1}}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ok, err := Match(test.filter, doc)
			require.NoError(t, err)
			require.Equal(t, test.expected, ok)
		})
	}

	failures := []struct {
		name   string
		filter bson.D
	}{
		{"unknown operators", bson.D{{Key: "qty", Value: bson.D{{Key: "$where", Value: "1"}}}}},
		{"invalid patterns", bson.D{{Key: "name", Value: primitive.Regex{Pattern: "("}}}},
		{"unsupported pattern options", bson.D{{Key: "name", Value: primitive.Regex{Pattern: "a", Options: "x"}}}},
		{"$mod by zero", bson.D{{Key: "qty", Value: bson.D{{Key: "$mod", Value: bson.A{0, 0}}}}}},
		{"$in without an array", bson.D{{Key: "qty", Value: bson.D{{Key: "$in", Value: 1}}}}},
		{"$or without an array", bson.D{{Key: "$or", Value: bson.D{}}}},
	}
	for _, test := range failures {
		t.Run("rejects "+test.name, func(t *testing.T) {
			_, err := Match(test.filter, doc)
			require.Error(t, err)
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Run("structs follow bson tags", func(t *testing.T) {
		d, err := Normalize(testC{D: "Dexter", E: testE{F: 11}})
		require.NoError(t, err)
		require.Equal(t, map[string]any{
			"D": "Dexter",
			"E": map[string]any{"F": int32(11), "I": nil},
		}, d)
	})

	t.Run("plain maps are used as they are", func(t *testing.T) {
		m := map[string]any{"a": []any{int32(1)}, "b": map[string]any{"c": "d"}}
		d, err := Normalize(m)
		require.NoError(t, err)
		require.Equal(t, m, d)
	})

	t.Run("maps holding other types are encoded", func(t *testing.T) {
		d, err := Normalize(bson.M{"a": []int{1}, "b": bson.M{"c": int8(2)}})
		require.NoError(t, err)
		require.Equal(t, map[string]any{"a": []any{int32(1)}, "b": map[string]any{"c": int32(2)}}, d)
	})

	t.Run("values which are not documents are rejected", func(t *testing.T) {
		_, err := Normalize(12)
		require.Error(t, err)
	})
}
