// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one digest cycle: compute the window from saved
// state, query each journal, filter and group the new articles, write the
// digest, advance the state, and mail the result.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/pubmed-digest/internal/digest"
	"github.com/pdiddy/pubmed-digest/internal/notify"
	"github.com/pdiddy/pubmed-digest/internal/pubmed"
	"github.com/pdiddy/pubmed-digest/internal/state"
	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// Searcher finds and fetches PubMed records. *pubmed.Client satisfies it.
type Searcher interface {
	SearchAllIDs(ctx context.Context, term string) ([]string, error)
	FetchRecords(ctx context.Context, ids []string) (string, error)
	FetchBatch() int
}

// Archiver stores delivered articles. *archive.Store satisfies it.
type Archiver interface {
	Record(ctx context.Context, runDate string, articles []types.ArticleRecord) error
}

// Pipeline holds the collaborators of a run. Mailer is required unless the
// run is a dry run. Archive and Log may be nil.
type Pipeline struct {
	Config  types.Config
	Search  Searcher
	Mailer  notify.Mailer
	Archive Archiver
	Log     logrus.FieldLogger
}

// Options controls a single run.
type Options struct {
	// Today is the run date. Only the calendar day is used.
	Today time.Time

	// DryRun writes the digest but skips archiving, saving state, and mail.
	DryRun bool
}

// Result summarizes a completed run.
type Result struct {
	RunDate     string
	Start       string
	End         string
	Total       int
	DigestPath  string
	NoNewPapers bool
}

// String is the one-line summary printed after a run.
func (r Result) String() string {
	if r.NoNewPapers {
		return fmt.Sprintf("No new papers (%s ~ %s). Saved: %s", r.Start, r.End, r.DigestPath)
	}
	return fmt.Sprintf("Saved: %s | New included papers: %d", r.DigestPath, r.Total)
}

// DigestFileName returns the Markdown digest name for a run date.
func DigestFileName(runDate string) string {
	return fmt.Sprintf("pubmed_digest_%s.md", runDate)
}

// Run executes one cycle. Mail readiness is checked before any search. Any
// failure aborts the run; state is saved only after the digest has been
// written, and the archive is updated only after state is saved.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	matcher, err := digest.NewMatcher(p.Config.KeywordPattern)
	if err != nil {
		return Result{}, err
	}

	if !opts.DryRun {
		if p.Mailer == nil {
			return Result{}, fmt.Errorf("%w: no mailer configured", types.ErrConfiguration)
		}
		if err := p.Mailer.Ready(); err != nil {
			return Result{}, err
		}
	}

	st, err := state.Load(p.Config.Output.StatePath, opts.Today)
	if err != nil {
		return Result{}, err
	}

	start, end := st.Window(opts.Today)
	res := Result{
		RunDate: end.Format(state.DateLayout),
		Start:   start.Format(state.DateLayout),
		End:     end.Format(state.DateLayout),
	}
	log.WithFields(logrus.Fields{"start": res.Start, "end": res.End}).Info("searching window")

	var found []types.ArticleRecord
	for _, rule := range p.Config.Journals {
		kept, err := p.collect(ctx, log, rule, st, matcher, start, end)
		if err != nil {
			return Result{}, fmt.Errorf("journal %q: %w", rule.Name, err)
		}
		found = append(found, kept...)
	}
	articles := digest.Dedup(found)

	if err := os.MkdirAll(p.Config.Output.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating output directory: %w", err)
	}
	res.DigestPath = filepath.Join(p.Config.Output.Dir, DigestFileName(res.RunDate))

	if len(articles) == 0 {
		return p.finishEmpty(ctx, log, opts, st, res)
	}
	return p.finish(ctx, log, opts, st, res, articles)
}

// collect returns the unseen articles of one journal that pass its rule.
func (p *Pipeline) collect(ctx context.Context, log logrus.FieldLogger, rule types.JournalRule, st state.RunState, m *digest.Matcher, start, end time.Time) ([]types.ArticleRecord, error) {
	jlog := log.WithField("journal", rule.Name)

	ids, err := p.Search.SearchAllIDs(ctx, pubmed.JournalTerm(rule.Name, start, end))
	if err != nil {
		return nil, err
	}

	var fresh []string
	for _, id := range ids {
		if !st.HasSeen(id) {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		jlog.WithField("ids", len(ids)).Debug("no unseen ids")
		return nil, nil
	}

	batch := p.Search.FetchBatch()
	if batch <= 0 {
		batch = 200
	}

	var kept []types.ArticleRecord
	for i := 0; i < len(fresh); i += batch {
		chunk := fresh[i:min(i+batch, len(fresh))]
		raw, err := p.Search.FetchRecords(ctx, chunk)
		if err != nil {
			return nil, err
		}
		records, err := pubmed.Parse(raw)
		if err != nil {
			return nil, err
		}
		for _, a := range records {
			if m.Keep(a, rule.Mode) {
				kept = append(kept, a)
			}
		}
	}

	jlog.WithFields(logrus.Fields{"ids": len(fresh), "kept": len(kept)}).Info("journal searched")
	return kept, nil
}

func (p *Pipeline) finishEmpty(ctx context.Context, log logrus.FieldLogger, opts Options, st state.RunState, res Result) (Result, error) {
	res.NoNewPapers = true

	if err := os.WriteFile(res.DigestPath, []byte(digest.RenderEmptyDigest(res.RunDate, res.Start, res.End)), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing digest: %w", err)
	}
	log.WithField("path", res.DigestPath).Info("no new papers")

	if opts.DryRun {
		return res, nil
	}

	st.Advance(opts.Today, nil)
	if err := state.Save(p.Config.Output.StatePath, st); err != nil {
		return Result{}, err
	}

	body := digest.EmptySummary(res.Start, res.End, filepath.Base(res.DigestPath))
	if err := p.Mailer.Send(ctx, digest.Subject(res.RunDate, 0), body, res.DigestPath); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) finish(ctx context.Context, log logrus.FieldLogger, opts Options, st state.RunState, res Result, articles []types.ArticleRecord) (Result, error) {
	bundle := digest.Group(articles)
	res.Total = bundle.Total()

	md := digest.RenderDigest(res.RunDate, res.Start, res.End, bundle)
	if err := os.WriteFile(res.DigestPath, []byte(md), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing digest: %w", err)
	}

	base := strings.TrimSuffix(res.DigestPath, ".md")
	if err := digest.WriteManifest(base+".yaml", digest.NewManifest(res.RunDate, res.Start, res.End, bundle)); err != nil {
		return Result{}, err
	}
	if p.Config.Output.HTML {
		page, err := digest.RenderHTML(fmt.Sprintf("%s (%s)", digest.Title, res.RunDate), md)
		if err != nil {
			return Result{}, err
		}
		if err := os.WriteFile(base+".html", []byte(page), 0o644); err != nil {
			return Result{}, fmt.Errorf("writing HTML digest: %w", err)
		}
	}
	log.WithFields(logrus.Fields{"path": res.DigestPath, "total": res.Total}).Info("digest written")

	if opts.DryRun {
		return res, nil
	}

	st.Advance(opts.Today, bundle.IDs())
	if err := state.Save(p.Config.Output.StatePath, st); err != nil {
		return Result{}, err
	}

	// Archive failures are logged only. The articles are already marked seen.
	if p.Archive != nil {
		if err := p.Archive.Record(ctx, res.RunDate, articles); err != nil {
			log.WithError(err).Warn("archiving articles failed")
		}
	}

	body := digest.RenderEmailSummary(res.RunDate, res.Start, res.End, bundle, p.Config.Output.TopN)
	if err := p.Mailer.Send(ctx, digest.Subject(res.RunDate, res.Total), body, res.DigestPath); err != nil {
		return res, err
	}
	return res, nil
}
