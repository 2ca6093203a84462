// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed searches and fetches PubMed records through the NCBI
// E-utilities API and parses them into article records.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/pubmed-digest/internal/httputil"
	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// Client issues esearch and efetch requests. All requests share one throttle.
type Client struct {
	cfg  types.PubMedConfig
	http *httputil.Throttled
}

// NewClient returns a Client that throttles requests according to cfg.
func NewClient(httpClient *http.Client, cfg types.PubMedConfig) *Client {
	if cfg.SearchBatch <= 0 {
		cfg.SearchBatch = 500
	}
	if cfg.FetchBatch <= 0 {
		cfg.FetchBatch = 200
	}
	return &Client{
		cfg:  cfg,
		http: httputil.NewThrottled(httpClient, cfg.UserAgent, cfg.Interval()),
	}
}

// FetchBatch returns the maximum number of ids the caller should pass to FetchRecords.
func (c *Client) FetchBatch() int { return c.cfg.FetchBatch }

// JournalTerm builds the esearch term for one journal over an inclusive
// publication-date window.
func JournalTerm(journal string, start, end time.Time) string {
	const layout = "2006-01-02"
	return fmt.Sprintf(`"%s"[jour] AND ("%s"[dp] : "%s"[dp])`,
		journal, start.Format(layout), end.Format(layout))
}

// Count returns the number of records matching term.
func (c *Client) Count(ctx context.Context, term string) (int, error) {
	res, err := c.esearch(ctx, term, 0, 0)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(res.Count)
	if err != nil {
		return 0, fmt.Errorf("%w: esearch count %q: %v", types.ErrParse, res.Count, err)
	}
	return n, nil
}

// SearchAllIDs pages through every record matching term and returns the ids
// in first-seen order with duplicates removed.
func (c *Client) SearchAllIDs(ctx context.Context, term string) ([]string, error) {
	count, err := c.Count(ctx, term)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var all []string
	for start := 0; start < count; start += c.cfg.SearchBatch {
		res, err := c.esearch(ctx, term, c.cfg.SearchBatch, start)
		if err != nil {
			return nil, fmt.Errorf("esearch page at %d: %w", start, err)
		}
		all = append(all, res.IDList...)
	}
	return uniqueIDs(all), nil
}

// FetchRecords returns the efetch XML document for ids. The caller keeps
// each batch at or below FetchBatch.
func (c *Client) FetchRecords(ctx context.Context, ids []string) (string, error) {
	if len(ids) == 0 {
		return "", fmt.Errorf("efetch: no ids given")
	}

	params := c.baseParams()
	params.Set("id", strings.Join(ids, ","))
	params.Set("retmode", "xml")

	body, err := c.http.Get(ctx, c.cfg.BaseURL+"/efetch.fcgi?"+params.Encode(), c.cfg.FetchTimeout)
	if err != nil {
		return "", fmt.Errorf("efetch %d ids: %w", len(ids), err)
	}
	return string(body), nil
}

func (c *Client) esearch(ctx context.Context, term string, retmax, retstart int) (esearchResult, error) {
	params := c.baseParams()
	params.Set("term", term)
	params.Set("retmode", "json")
	params.Set("retmax", strconv.Itoa(retmax))
	if retmax > 0 {
		params.Set("retstart", strconv.Itoa(retstart))
	}

	body, err := c.http.Get(ctx, c.cfg.BaseURL+"/esearch.fcgi?"+params.Encode(), c.cfg.SearchTimeout)
	if err != nil {
		return esearchResult{}, fmt.Errorf("esearch: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return esearchResult{}, fmt.Errorf("%w: esearch response: %v", types.ErrParse, err)
	}
	if resp.Result.Error != "" {
		return esearchResult{}, fmt.Errorf("%w: esearch: %s", types.ErrNetwork, resp.Result.Error)
	}
	if resp.Result.Count == "" {
		resp.Result.Count = "0"
	}
	return resp.Result, nil
}

func (c *Client) baseParams() url.Values {
	params := url.Values{
		"db":   {c.cfg.Database},
		"tool": {c.cfg.Tool},
	}
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}
	return params
}

// uniqueIDs removes repeated ids, keeping the first occurrence.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// esearch JSON structures.
type esearchResponse struct {
	Result esearchResult `json:"esearchresult"`
}

type esearchResult struct {
	Count  string   `json:"count"`
	IDList []string `json:"idlist"`
	Error  string   `json:"ERROR"`
}
