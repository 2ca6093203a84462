// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-digest/internal/archive"
	"github.com/pdiddy/pubmed-digest/internal/notify"
	"github.com/pdiddy/pubmed-digest/internal/pipeline"
	"github.com/pdiddy/pubmed-digest/internal/pubmed"
	"github.com/pdiddy/pubmed-digest/internal/state"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Search PubMed since the last run, write the digest, and email it",
	Long: `Run computes the window from the day after the last run through today,
queries every configured journal, keeps unseen articles that pass the journal's
rule, and writes pubmed_digest_<date>.md with a YAML manifest next to it.
The state file is then advanced and the digest is emailed.

With --dry-run the digest is written but nothing is archived, the state file
is left alone, and no mail is sent.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("today", "", "run date as YYYY-MM-DD (default: current date)")
	runCmd.Flags().Bool("dry-run", false, "write the digest only; skip archive, state update, and email")
	runCmd.Flags().Bool("html", false, "also write an HTML digest")
	runCmd.Flags().String("state", "", "state file path (default pubmed_oph_state.json)")
	runCmd.Flags().String("out-dir", "", "digest output directory (default pubmed_digests)")
	runCmd.Flags().Int("top-n", 0, "articles per journal in the email summary (default 5)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	today, err := parseToday(cmd)
	if err != nil {
		return err
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	p := &pipeline.Pipeline{
		Config: cfg,
		Search: pubmed.NewClient(&http.Client{}, cfg.PubMed),
		Mailer: notify.NewSMTPMailer(cfg.SMTP),
		Log:    log,
	}

	if !dryRun {
		store, err := archive.Open(filepath.Join(cfg.Output.Dir, archive.FileName))
		if err != nil {
			return err
		}
		defer store.Close()
		p.Archive = store
	}

	res, err := p.Run(cmd.Context(), pipeline.Options{Today: today, DryRun: dryRun})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.String())
	return nil
}

func parseToday(cmd *cobra.Command) (time.Time, error) {
	s, _ := cmd.Flags().GetString("today")
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.Parse(state.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --today %q: want YYYY-MM-DD", s)
	}
	return t, nil
}
