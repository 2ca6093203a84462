// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pdiddy/pubmed-digest/internal/digest"
)

var renderCmd = &cobra.Command{
	Use:   "render <manifest.yaml>",
	Short: "Rebuild a digest from a saved manifest",
	Long: `Render reads a run manifest written next to a digest and renders the
Markdown digest again without contacting PubMed. Use --html for an HTML copy
and --summary to print the email body to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().String("out", "", "Markdown output path (default: manifest path with .md)")
	renderCmd.Flags().Bool("html", false, "also write an HTML digest")
	renderCmd.Flags().Bool("summary", false, "print the email summary to stdout")
	renderCmd.Flags().Int("top-n", digest.DefaultTopN, "articles per journal in the summary")

	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	m, err := digest.ReadManifest(args[0])
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = strings.TrimSuffix(args[0], ".yaml") + ".md"
	}

	md := digest.RenderDigest(m.RunDate, m.Start, m.End, m.Journals)
	if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing digest: %w", err)
	}
	log.WithFields(logrus.Fields{"path": out, "total": m.Total}).Info("digest rendered")

	if withHTML, _ := cmd.Flags().GetBool("html"); withHTML {
		page, err := digest.RenderHTML(fmt.Sprintf("%s (%s)", digest.Title, m.RunDate), md)
		if err != nil {
			return err
		}
		htmlPath := strings.TrimSuffix(out, ".md") + ".html"
		if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
			return fmt.Errorf("writing HTML digest: %w", err)
		}
		log.WithField("path", htmlPath).Info("HTML written")
	}

	if summary, _ := cmd.Flags().GetBool("summary"); summary {
		topN, _ := cmd.Flags().GetInt("top-n")
		fmt.Fprintln(cmd.OutOrStdout(), digest.Subject(m.RunDate, m.Total))
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), digest.RenderEmailSummary(m.RunDate, m.Start, m.End, m.Journals, topN))
	}
	return nil
}
