// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/pubmed-digest/internal/digest"
	"github.com/pdiddy/pubmed-digest/internal/notify"
	"github.com/pdiddy/pubmed-digest/internal/state"
	"github.com/pdiddy/pubmed-digest/pkg/types"
)

var runDay = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

// fakeSearcher answers searches per journal and fetches from a record table.
type fakeSearcher struct {
	byJournal map[string][]string
	records   map[string]types.ArticleRecord
	batch     int
	searchErr error
	fetchErr  error

	terms   []string
	fetched [][]string
}

func (f *fakeSearcher) SearchAllIDs(_ context.Context, term string) ([]string, error) {
	f.terms = append(f.terms, term)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	for name, ids := range f.byJournal {
		if strings.HasPrefix(term, `"`+name+`"[jour]`) {
			return ids, nil
		}
	}
	return nil, nil
}

func (f *fakeSearcher) FetchRecords(_ context.Context, ids []string) (string, error) {
	f.fetched = append(f.fetched, append([]string(nil), ids...))
	if f.fetchErr != nil {
		return "", f.fetchErr
	}
	var buf bytes.Buffer
	buf.WriteString("<PubmedArticleSet>")
	for _, id := range ids {
		writeArticleXML(&buf, f.records[id])
	}
	buf.WriteString("</PubmedArticleSet>")
	return buf.String(), nil
}

func (f *fakeSearcher) FetchBatch() int { return f.batch }

func writeArticleXML(buf *bytes.Buffer, a types.ArticleRecord) {
	esc := func(s string) string {
		var b bytes.Buffer
		xml.EscapeText(&b, []byte(s))
		return b.String()
	}
	fmt.Fprintf(buf, "<PubmedArticle><MedlineCitation><PMID>%s</PMID><Article>", esc(a.ID))
	fmt.Fprintf(buf, "<Journal><Title>%s</Title><JournalIssue><PubDate>", esc(a.Journal))
	if a.PubDate != "" {
		fmt.Fprintf(buf, "<Year>%s</Year>", esc(a.PubDate))
	}
	buf.WriteString("</PubDate></JournalIssue></Journal>")
	fmt.Fprintf(buf, "<ArticleTitle>%s</ArticleTitle>", esc(a.Title))
	if a.Abstract != "" {
		fmt.Fprintf(buf, "<Abstract><AbstractText>%s</AbstractText></Abstract>", esc(a.Abstract))
	}
	buf.WriteString("</Article></MedlineCitation><PubmedData><ArticleIdList>")
	if a.DOI != "" {
		fmt.Fprintf(buf, `<ArticleId IdType="doi">%s</ArticleId>`, esc(a.DOI))
	}
	buf.WriteString("</ArticleIdList></PubmedData></PubmedArticle>")
}

type sentMail struct {
	subject, body, attachment string
	content                   string
}

type fakeMailer struct {
	sent     []sentMail
	err      error
	readyErr error
}

func (m *fakeMailer) Ready() error { return m.readyErr }

func (m *fakeMailer) Send(_ context.Context, subject, body, attachmentPath string) error {
	data, _ := os.ReadFile(attachmentPath)
	m.sent = append(m.sent, sentMail{subject: subject, body: body, attachment: attachmentPath, content: string(data)})
	return m.err
}

type fakeArchive struct {
	runDate  string
	articles []types.ArticleRecord
	err      error

	// statePath, when set, is read at Record time to capture what was saved.
	statePath  string
	savedState []byte
}

func (a *fakeArchive) Record(_ context.Context, runDate string, articles []types.ArticleRecord) error {
	if a.statePath != "" {
		a.savedState, _ = os.ReadFile(a.statePath)
	}
	if a.err != nil {
		return a.err
	}
	a.runDate = runDate
	a.articles = append(a.articles, articles...)
	return nil
}

type fixture struct {
	p       *Pipeline
	search  *fakeSearcher
	mailer  *fakeMailer
	archive *fakeArchive
	dir     string
}

func newFixture(t *testing.T, journals []types.JournalRule) *fixture {
	t.Helper()
	dir := t.TempDir()

	cfg := types.DefaultConfig()
	cfg.Journals = journals
	cfg.Output.StatePath = filepath.Join(dir, "state.json")
	cfg.Output.Dir = filepath.Join(dir, "digests")

	log := logrus.New()
	log.SetOutput(io.Discard)

	f := &fixture{
		search:  &fakeSearcher{byJournal: map[string][]string{}, records: map[string]types.ArticleRecord{}},
		mailer:  &fakeMailer{},
		archive: &fakeArchive{},
		dir:     dir,
	}
	f.p = &Pipeline{Config: cfg, Search: f.search, Mailer: f.mailer, Archive: f.archive, Log: log}
	return f
}

func (f *fixture) add(journal string, articles ...types.ArticleRecord) {
	for _, a := range articles {
		a.Journal = journal
		f.search.byJournal[journal] = append(f.search.byJournal[journal], a.ID)
		f.search.records[a.ID] = a
	}
}

func writeState(t *testing.T, path, lastRun string, seen ...string) {
	t.Helper()
	if seen == nil {
		seen = []string{}
	}
	data, err := json.Marshal(map[string]any{"last_run": lastRun, "seen_pmids": seen})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func readState(t *testing.T, path string) state.RunState {
	t.Helper()
	st, err := state.Load(path, runDay)
	require.NoError(t, err)
	return st
}

var twoJournals = []types.JournalRule{
	{Name: "Retina (Philadelphia, Pa.)", Mode: types.AcceptAll},
	{Name: "Ophthalmology", Mode: types.KeywordFilter},
}

func TestRunNoNewPapers(t *testing.T) {
	f := newFixture(t, twoJournals)
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)

	assert.True(t, res.NoNewPapers)
	assert.Equal(t, Result{
		RunDate: "2024-03-15", Start: "2024-03-09", End: "2024-03-15",
		DigestPath:  filepath.Join(f.dir, "digests", "pubmed_digest_2024-03-15.md"),
		NoNewPapers: true,
	}, res)

	data, err := os.ReadFile(res.DigestPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "No new papers (2024-03-09 ~ 2024-03-15)")

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, "2024-03-15", st.LastRun.Format(state.DateLayout))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "[PubMed Digest] 2024-03-15 (No new papers)", f.mailer.sent[0].subject)
	assert.Contains(t, f.mailer.sent[0].body, "pubmed_digest_2024-03-15.md")
	assert.Empty(t, f.search.fetched, "nothing to fetch")
	assert.Empty(t, f.archive.articles)
}

func TestRunFiltersAndGroups(t *testing.T) {
	f := newFixture(t, twoJournals)
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")

	f.add("Retina (Philadelphia, Pa.)",
		types.ArticleRecord{ID: "1", Title: "Scleral buckle versus vitrectomy", PubDate: "2024"},
		types.ArticleRecord{ID: "2", Title: "Cataract surgery in retina patients", PubDate: "2024"},
	)
	f.add("Ophthalmology",
		types.ArticleRecord{ID: "3", Title: "Macular hole closure rates", Abstract: "ILM peeling."},
		types.ArticleRecord{ID: "4", Title: "Glaucoma progression", Abstract: "Visual fields."},
	)

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.False(t, res.NoNewPapers)
	assert.Equal(t, 3, res.Total)

	require.Len(t, f.search.terms, 2)
	assert.Equal(t, `"Retina (Philadelphia, Pa.)"[jour] AND ("2024-03-09"[dp] : "2024-03-15"[dp])`, f.search.terms[0])

	data, err := os.ReadFile(res.DigestPath)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "- Total papers: **3**")
	assert.Contains(t, md, "## Ophthalmology  \n**(1 papers)**")
	assert.Contains(t, md, "## Retina (Philadelphia, Pa.)  \n**(2 papers)**")
	assert.Contains(t, md, "Macular hole closure rates")
	assert.NotContains(t, md, "Glaucoma progression")

	m, err := digest.ReadManifest(strings.TrimSuffix(res.DigestPath, ".md") + ".yaml")
	require.NoError(t, err)
	assert.Equal(t, md, digest.RenderDigest(m.RunDate, m.Start, m.End, m.Journals))
	assert.NoFileExists(t, strings.TrimSuffix(res.DigestPath, ".md")+".html")

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, []string{"1", "2", "3"}, st.SeenIDs(), "filtered-out articles are not marked seen")
	assert.Equal(t, "2024-03-15", st.LastRun.Format(state.DateLayout))

	require.Len(t, f.mailer.sent, 1)
	sent := f.mailer.sent[0]
	assert.Equal(t, "[PubMed Digest] Ophthalmology Weekly - 2024-03-15 (3 papers)", sent.subject)
	assert.Contains(t, sent.body, "[Retina (Philadelphia, Pa.)] (2 papers)")
	assert.Equal(t, res.DigestPath, sent.attachment)
	assert.Equal(t, md, sent.content)

	assert.Equal(t, "2024-03-15", f.archive.runDate)
	assert.Len(t, f.archive.articles, 3)
}

func TestRunExcludesSeenIDs(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08", "1")

	f.add("Retina (Philadelphia, Pa.)",
		types.ArticleRecord{ID: "1", Title: "Already delivered"},
		types.ArticleRecord{ID: "2", Title: "Brand new"},
	)

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, [][]string{{"2"}}, f.search.fetched)

	data, err := os.ReadFile(res.DigestPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Already delivered")
	assert.Equal(t, 1, strings.Count(string(data), "Brand new"))

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, []string{"1", "2"}, st.SeenIDs())
}

func TestRunDedupsAcrossJournals(t *testing.T) {
	f := newFixture(t, []types.JournalRule{
		{Name: "A", Mode: types.AcceptAll},
		{Name: "B", Mode: types.AcceptAll},
	})
	f.search.byJournal["A"] = []string{"9"}
	f.search.byJournal["B"] = []string{"9"}
	f.search.records["9"] = types.ArticleRecord{ID: "9", Title: "Cross-listed", Journal: "A"}

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}

func TestRunOmitsMissingMetadata(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "5", Title: "Undated"})

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)

	data, err := os.ReadFile(res.DigestPath)
	require.NoError(t, err)
	md := string(data)
	assert.Contains(t, md, "- PMID: 5 (https://pubmed.ncbi.nlm.nih.gov/5/)\n")
	assert.NotContains(t, md, "Date:")
	assert.NotContains(t, md, "DOI:")
	assert.NotContains(t, md, "Authors:")
}

func TestRunChunksFetches(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	f.search.batch = 2
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: id, Title: "T" + id})
	}

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5"}}, f.search.fetched)
}

func TestRunFirstRunUsesDefaultWindow(t *testing.T) {
	f := newFixture(t, twoJournals[:1])

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-09", res.Start)
	assert.Equal(t, "2024-03-15", res.End)
}

func TestRunWritesHTML(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	f.p.Config.Output.HTML = true
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "Pneumatic retinopexy"})

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)

	data, err := os.ReadFile(strings.TrimSuffix(res.DigestPath, ".md") + ".html")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Pneumatic retinopexy")
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "Dry run article"})

	res, err := f.p.Run(context.Background(), Options{Today: runDay, DryRun: true})
	require.NoError(t, err)
	assert.FileExists(t, res.DigestPath)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.archive.articles)

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, "2024-03-08", st.LastRun.Format(state.DateLayout))
	assert.Empty(t, st.Seen)
}

func TestRunFailuresLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name    string
		arrange func(f *fixture)
		wantErr error
	}{
		{
			name:    "search failure",
			arrange: func(f *fixture) { f.search.searchErr = fmt.Errorf("%w: HTTP 503", types.ErrNetwork) },
			wantErr: types.ErrNetwork,
		},
		{
			name:    "fetch failure",
			arrange: func(f *fixture) { f.search.fetchErr = fmt.Errorf("%w: timeout", types.ErrNetwork) },
			wantErr: types.ErrNetwork,
		},
		{
			name:    "bad keyword pattern",
			arrange: func(f *fixture) { f.p.Config.KeywordPattern = "(" },
			wantErr: types.ErrConfiguration,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, twoJournals[:1])
			writeState(t, f.p.Config.Output.StatePath, "2024-03-08")
			f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "T"})
			tc.arrange(f)

			_, err := f.p.Run(context.Background(), Options{Today: runDay})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			st := readState(t, f.p.Config.Output.StatePath)
			assert.Equal(t, "2024-03-08", st.LastRun.Format(state.DateLayout))
			assert.Empty(t, st.Seen)
			assert.Empty(t, f.mailer.sent)
		})
	}
}

func TestRunWithoutMailCredentialsLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "T"})
	f.p.Mailer = notify.NewSMTPMailer(types.SMTPConfig{Host: "smtp.example.com", Port: 587})

	_, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Empty(t, f.search.terms, "no search before mail is ready")
	assert.Empty(t, f.archive.articles)

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, "2024-03-08", st.LastRun.Format(state.DateLayout))
	assert.Empty(t, st.Seen)
}

func TestRunMailerRequirement(t *testing.T) {
	tests := []struct {
		name    string
		mailer  notify.Mailer
		dryRun  bool
		wantErr bool
	}{
		{name: "nil mailer", mailer: nil, wantErr: true},
		{name: "mailer not ready", mailer: &fakeMailer{readyErr: fmt.Errorf("%w: no sender", types.ErrConfiguration)}, wantErr: true},
		{name: "dry run needs no mailer", mailer: nil, dryRun: true},
		{name: "dry run ignores readiness", mailer: &fakeMailer{readyErr: types.ErrConfiguration}, dryRun: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, twoJournals[:1])
			f.p.Mailer = tc.mailer

			_, err := f.p.Run(context.Background(), Options{Today: runDay, DryRun: tc.dryRun})
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrConfiguration)
			assert.NoFileExists(t, f.p.Config.Output.StatePath)
		})
	}
}

func TestRunArchivesAfterStateSave(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "T"})
	f.archive.statePath = f.p.Config.Output.StatePath

	_, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Contains(t, string(f.archive.savedState), `"last_run": "2024-03-15"`)
	assert.Contains(t, string(f.archive.savedState), `"1"`)
}

func TestRunArchiveFailureStillMails(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "T"})
	f.archive.err = errors.New("disk I/O error")

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"1"}, readState(t, f.p.Config.Output.StatePath).SeenIDs())
}

func TestRunMalformedStateIsFatal(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	require.NoError(t, os.WriteFile(f.p.Config.Output.StatePath, []byte("{not json"), 0o644))

	_, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Empty(t, f.search.terms)
}

func TestRunDeliveryFailureAfterStateSave(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-03-08")
	f.add("Retina (Philadelphia, Pa.)", types.ArticleRecord{ID: "1", Title: "T"})
	f.mailer.err = fmt.Errorf("%w: connection refused", types.ErrNetwork)

	res, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNetwork))
	assert.Equal(t, 1, res.Total)

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, "2024-03-15", st.LastRun.Format(state.DateLayout))
	assert.Equal(t, []string{"1"}, st.SeenIDs())
}

func TestRunNeverMovesLastRunBackwards(t *testing.T) {
	f := newFixture(t, twoJournals[:1])
	writeState(t, f.p.Config.Output.StatePath, "2024-04-01")

	_, err := f.p.Run(context.Background(), Options{Today: runDay})
	require.NoError(t, err)

	st := readState(t, f.p.Config.Output.StatePath)
	assert.Equal(t, "2024-04-01", st.LastRun.Format(state.DateLayout))
}

func TestResultString(t *testing.T) {
	assert.Equal(t, "Saved: d.md | New included papers: 3", Result{DigestPath: "d.md", Total: 3}.String())
	assert.Equal(t, "No new papers (a ~ b). Saved: d.md",
		Result{DigestPath: "d.md", Start: "a", End: "b", NoNewPapers: true}.String())
}
