package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

var compileCanonical bool

var compileCmd = &cobra.Command{
	Use:   "compile [expression]",
	Short: "Print the filter document for an expression",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := printFilter(cmd.Context(), os.Stdout, args[0]); err != nil {
			bailf("error compiling expression: %s", err)
		}
	},
}

func printFilter(ctx context.Context, w io.Writer, expr string) error {
	c, err := newCompiler()
	if err != nil {
		return err
	}
	filter, err := c.Compile(ctx, typeName, expr)
	if err != nil {
		return err
	}
	out, err := bson.MarshalExtJSON(filter, compileCanonical, false)
	if err != nil {
		return fmt.Errorf("error encoding filter: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func init() {
	rootCmd.AddCommand(compileCmd)

	compileCmd.PersistentFlags().BoolVarP(&compileCanonical, "canonical", "c", false, "Print canonical rather than relaxed extended JSON")
}
