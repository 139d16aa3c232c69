// Command sentencehnsw-admin is an offline operator tool for inspecting and
// maintaining the on-disk index snapshot and metadata store without going
// through the HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/embedsvc/sentencehnsw/pkg/index"
	"github.com/embedsvc/sentencehnsw/pkg/metastore"
	"github.com/embedsvc/sentencehnsw/pkg/snapshot"
)

var (
	hnswPath   string
	sqlitePath string
	dimensions int
	asJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "sentencehnsw-admin",
	Short: "Operator CLI for the sentence-indexed ANN search service",
	Long:  "Inspect, flush, reload, and wipe the on-disk index snapshot and metadata store.",
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		idx := index.New(dimensions, 16, 200)
		if err := snapshot.Restore(idx, hnswPath); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}

		stats := idx.Stats()
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		for k, v := range stats {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <sentence>",
	Short: "Look up a sentence's cached vector and search the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sentence := args[0]

		ctx := context.Background()
		store, err := metastore.Open(ctx, sqlitePath, dimensions, nil)
		if err != nil {
			return fmt.Errorf("open metadata store: %w", err)
		}
		defer store.Close()

		v, ok, err := store.GetVector(ctx, sentence)
		if err != nil {
			return fmt.Errorf("lookup cached vector: %w", err)
		}
		if !ok {
			return fmt.Errorf("no cached vector for sentence %q; embed it first", sentence)
		}

		idx := index.New(dimensions, 16, 200)
		if err := snapshot.Restore(idx, hnswPath); err != nil {
			return fmt.Errorf("restore snapshot: %w", err)
		}

		results := idx.SearchDefault([]float32(v), 5)
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		for _, r := range results {
			fmt.Printf("%.6f\t%s\n", r.Distance, r.Payload)
		}
		return nil
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Truncate the metadata store and empty the index snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := metastore.Open(ctx, sqlitePath, dimensions, nil)
		if err != nil {
			return fmt.Errorf("open metadata store: %w", err)
		}
		defer store.Close()

		if err := store.Truncate(ctx); err != nil {
			return fmt.Errorf("truncate metadata store: %w", err)
		}

		idx := index.New(dimensions, 16, 200)
		if err := idx.Build(nil, nil); err != nil {
			return fmt.Errorf("reset index: %w", err)
		}
		if err := snapshot.Save(idx, hnswPath); err != nil {
			return fmt.Errorf("save empty snapshot: %w", err)
		}

		fmt.Println("wiped metadata store and index snapshot")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&hnswPath, "hnsw-path", "data/hnsw.json", "path to the index snapshot file")
	rootCmd.PersistentFlags().StringVar(&sqlitePath, "sqlite-path", "data/vectors.db", "path to the SQLite metadata store")
	rootCmd.PersistentFlags().IntVar(&dimensions, "dimensions", 1536, "vector dimensionality")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "emit machine-readable JSON output")

	rootCmd.AddCommand(statsCmd, searchCmd, wipeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
