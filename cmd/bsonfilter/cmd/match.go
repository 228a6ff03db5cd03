package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/inngest/bsonfilter/docstore"
)

var matchDocuments string

var matchCmd = &cobra.Command{
	Use:   "match [expression]",
	Short: "Print the documents in a file which match an expression",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := printMatches(cmd.Context(), os.Stdout, matchDocuments, args[0]); err != nil {
			bailf("error matching documents: %s", err)
		}
	},
}

// printMatches loads a JSON array of extended JSON documents into a memory
// collection and prints those matching expr, one per line.
func printMatches(ctx context.Context, w io.Writer, path, expr string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading documents: %w", err)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("error decoding documents: %w", err)
	}

	coll := docstore.NewMemory()
	defer coll.Close()
	for i, item := range items {
		var doc bson.D
		if err := bson.UnmarshalExtJSON(item, false, &doc); err != nil {
			return fmt.Errorf("error decoding document %d: %w", i, err)
		}
		if _, err := coll.Insert(ctx, doc); err != nil {
			return err
		}
	}

	c, err := newCompiler()
	if err != nil {
		return err
	}
	found, err := docstore.FindWhere(ctx, coll, c, typeName, expr)
	if err != nil {
		return err
	}
	for _, raw := range found {
		out, err := bson.MarshalExtJSON(raw, false, false)
		if err != nil {
			return fmt.Errorf("error encoding document: %w", err)
		}
		if _, err := fmt.Fprintln(w, string(out)); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.PersistentFlags().StringVarP(&matchDocuments, "documents", "d", "", "JSON file holding an array of documents")
	matchCmd.MarkPersistentFlagRequired("documents")
}
