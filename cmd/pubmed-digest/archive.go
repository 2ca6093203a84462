// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-digest/internal/archive"
	"github.com/pdiddy/pubmed-digest/internal/digest"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Query the archive of delivered articles",
	Long: `Archive works with the SQLite database of every article a run has
delivered. It lives at <out-dir>/archive.db.`,
}

var archiveSearchCmd = &cobra.Command{
	Use:   "search [text]",
	Short: "Search archived articles by title or abstract text",
	RunE:  runArchiveSearch,
}

func init() {
	archiveCmd.PersistentFlags().String("out-dir", "", "digest output directory holding archive.db (default pubmed_digests)")

	archiveSearchCmd.Flags().String("journal", "", "filter by journal name")
	archiveSearchCmd.Flags().String("since", "", "only runs on or after YYYY-MM-DD")
	archiveSearchCmd.Flags().Int("limit", 0, "maximum results (0 = 20)")
	archiveSearchCmd.Flags().Bool("json", false, "output results as JSON")

	archiveCmd.AddCommand(archiveSearchCmd)
	rootCmd.AddCommand(archiveCmd)
}

func runArchiveSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := archive.Open(filepath.Join(cfg.Output.Dir, archive.FileName))
	if err != nil {
		return err
	}
	defer store.Close()

	q := archive.Query{Text: strings.Join(args, " ")}
	q.Journal, _ = cmd.Flags().GetString("journal")
	q.Since, _ = cmd.Flags().GetString("since")
	q.Max, _ = cmd.Flags().GetInt("limit")

	entries, err := store.Search(cmd.Context(), q)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatArchiveEntries(cmd.OutOrStdout(), entries, jsonOutput)
}

func formatArchiveEntries(w io.Writer, entries []archive.Entry, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-10s  %-10s  %-24s  %s\n", "Run", "PMID", "Journal", "Title")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, e := range entries {
		fmt.Fprintf(w, "%-10s  %-10s  %-24s  %s\n", e.RunDate, e.ID, truncate(e.Journal, 24), truncate(e.Title, 60))
	}
	fmt.Fprintf(w, "\n%d results\n", len(entries))
	if len(entries) == 1 {
		fmt.Fprintln(w, digest.Permalink(entries[0].ID))
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
