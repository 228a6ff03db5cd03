package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inngest/bsonfilter"
)

var (
	schemaPath string
	typeName   string
	paramName  string
)

var rootCmd = &cobra.Command{
	Use:   "bsonfilter",
	Short: "Compile CEL predicates into MongoDB filter documents",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func bailf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// newCompiler loads the schema file and returns a compiler over its types.
func newCompiler() (*bsonfilter.Compiler, error) {
	f, err := os.Open(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("error opening schema: %w", err)
	}
	defer f.Close()

	registry := bsonfilter.NewRegistry()
	if err := registry.LoadSchema(f); err != nil {
		return nil, err
	}
	return bsonfilter.NewCompiler(registry, bsonfilter.WithParam(paramName))
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&schemaPath, "schema", "s", "", "Schema file declaring document types")
	rootCmd.MarkPersistentFlagRequired("schema")
	rootCmd.PersistentFlags().StringVarP(&typeName, "type", "t", "", "Document type of the root parameter")
	rootCmd.MarkPersistentFlagRequired("type")
	rootCmd.PersistentFlags().StringVarP(&paramName, "param", "p", bsonfilter.DefaultParam, "Name of the root parameter")
}
