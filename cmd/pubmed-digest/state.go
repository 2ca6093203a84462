// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-digest/internal/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the run state file",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last run date, seen count, and the next run's window",
	RunE:  runStateShow,
}

func init() {
	stateCmd.PersistentFlags().String("state", "", "state file path (default pubmed_oph_state.json)")
	stateShowCmd.Flags().String("today", "", "date for the window preview as YYYY-MM-DD (default: current date)")
	stateShowCmd.Flags().Bool("json", false, "print the state file contents as JSON")

	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	today, err := parseToday(cmd)
	if err != nil {
		return err
	}

	st, err := state.Load(cfg.Output.StatePath, today)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"last_run":   st.LastRun.Format(state.DateLayout),
			"seen_pmids": st.SeenIDs(),
		})
	}

	start, end := st.Window(today)
	fmt.Fprintf(w, "State file:  %s\n", cfg.Output.StatePath)
	fmt.Fprintf(w, "Last run:    %s\n", st.LastRun.Format(state.DateLayout))
	fmt.Fprintf(w, "Seen PMIDs:  %d\n", len(st.Seen))
	fmt.Fprintf(w, "Next window: %s ~ %s\n", start.Format(state.DateLayout), end.Format(state.DateLayout))
	return nil
}
