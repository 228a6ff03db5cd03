package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testSchema = `{
	"types": {
		"Item": {
			"fields": [
				{"name": "ID", "element": "_id", "type": "int32"},
				{"name": "Name", "element": "name", "type": "string"},
				{"name": "Qty", "element": "qty", "type": "int64"},
				{"name": "Tags", "element": "tags", "type": "[]string"}
			]
		}
	}
}`

const testDocuments = `[
	{"_id": 1, "name": "Widget", "qty": {"$numberLong": "12"}, "tags": ["red"]},
	{"_id": 2, "name": "Gadget", "qty": {"$numberLong": "0"}, "tags": []}
]`

func writeFile(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func setup(t *testing.T) {
	t.Helper()
	schemaPath = writeFile(t, "schema.json", testSchema)
	typeName = "Item"
	paramName = "i"
	compileCanonical = false
}

func TestPrintFilter(t *testing.T) {
	setup(t)
	ctx := context.Background()

	t.Run("filters print as relaxed extended JSON", func(t *testing.T) {
		buf := &bytes.Buffer{}
		require.NoError(t, printFilter(ctx, buf, `i.Qty > 1 && i.Name.startsWith("W")`))
		require.Equal(t, `{"qty":{"$gt":1},"name":{"$regularExpression":{"pattern":"^W","options":"s"}}}`, strings.TrimSpace(buf.String()))
	})

	t.Run("canonical output keeps every width", func(t *testing.T) {
		compileCanonical = true
		defer func() { compileCanonical = false }()

		buf := &bytes.Buffer{}
		require.NoError(t, printFilter(ctx, buf, `i.ID == 3`))
		require.Equal(t, `{"_id":{"$numberInt":"3"}}`, strings.TrimSpace(buf.String()))
	})

	t.Run("compile errors are returned", func(t *testing.T) {
		require.Error(t, printFilter(ctx, &bytes.Buffer{}, `i.Missing == 1`))
	})

	t.Run("missing schemas are reported", func(t *testing.T) {
		schemaPath = filepath.Join(t.TempDir(), "missing.json")
		defer setup(t)
		require.Error(t, printFilter(ctx, &bytes.Buffer{}, `i.ID == 3`))
	})
}

func TestPrintMatches(t *testing.T) {
	setup(t)
	ctx := context.Background()
	docs := writeFile(t, "docs.json", testDocuments)

	buf := &bytes.Buffer{}
	require.NoError(t, printMatches(ctx, buf, docs, `i.Tags.exists()`))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], `"name":"Widget"`)

	t.Run("invalid documents are reported", func(t *testing.T) {
		bad := writeFile(t, "bad.json", `{"not": "an array"}`)
		require.Error(t, printMatches(ctx, &bytes.Buffer{}, bad, `i.Tags.exists()`))
	})
}
