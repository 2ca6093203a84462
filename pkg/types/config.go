// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "pubmed-digest/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent" mapstructure:"user_agent"`

	// SearchTimeout bounds a single esearch request (default 30s).
	SearchTimeout time.Duration `json:"search_timeout" yaml:"search_timeout" mapstructure:"search_timeout"`

	// FetchTimeout bounds a single efetch request (default 90s).
	FetchTimeout time.Duration `json:"fetch_timeout" yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
}

// PubMedConfig holds settings for the E-utilities search and fetch client.
type PubMedConfig struct {
	HTTPConfig `yaml:",inline" mapstructure:",squash"`

	// BaseURL is the E-utilities root (no trailing slash).
	BaseURL string `json:"base_url" yaml:"base_url" mapstructure:"base_url"`

	// Database is the Entrez database name.
	Database string `json:"database" yaml:"database" mapstructure:"database"`

	// Tool identifies this program to NCBI.
	Tool string `json:"tool" yaml:"tool" mapstructure:"tool"`

	// Email is the contact address NCBI asks callers to supply.
	Email string `json:"email,omitempty" yaml:"email,omitempty" mapstructure:"email"`

	// APIKey raises the NCBI rate limit when set.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" mapstructure:"api_key"`

	// Delay is the minimum gap between requests without an API key (default 350ms).
	Delay time.Duration `json:"delay" yaml:"delay" mapstructure:"delay"`

	// KeyedDelay is the minimum gap between requests with an API key (default 120ms).
	KeyedDelay time.Duration `json:"keyed_delay" yaml:"keyed_delay" mapstructure:"keyed_delay"`

	// SearchBatch is the esearch page size (default 500).
	SearchBatch int `json:"search_batch" yaml:"search_batch" mapstructure:"search_batch"`

	// FetchBatch is the maximum number of ids per efetch request (default 200).
	FetchBatch int `json:"fetch_batch" yaml:"fetch_batch" mapstructure:"fetch_batch"`
}

// Interval returns the throttle gap that applies to this configuration.
func (c PubMedConfig) Interval() time.Duration {
	if c.APIKey != "" {
		return c.KeyedDelay
	}
	return c.Delay
}

// SMTPConfig holds the outbound mail endpoint and credentials.
type SMTPConfig struct {
	Host      string `json:"host" yaml:"host" mapstructure:"host"`
	Port      int    `json:"port" yaml:"port" mapstructure:"port"`
	Sender    string `json:"sender" yaml:"sender" mapstructure:"sender"`
	Password  string `json:"-" yaml:"-" mapstructure:"password"`
	Recipient string `json:"recipient" yaml:"recipient" mapstructure:"recipient"`

	// Timeout bounds dialing and the whole SMTP conversation (default 30s).
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// OutputConfig holds file locations for state, digests, and the archive.
type OutputConfig struct {
	// StatePath is the JSON run-state file.
	StatePath string `json:"state_path" yaml:"state_path" mapstructure:"state_path"`

	// Dir receives digests, manifests, and the archive database.
	Dir string `json:"dir" yaml:"dir" mapstructure:"dir"`

	// HTML also writes an HTML rendering of each digest.
	HTML bool `json:"html" yaml:"html" mapstructure:"html"`

	// TopN caps the articles listed per journal in the email summary (default 5).
	TopN int `json:"top_n" yaml:"top_n" mapstructure:"top_n"`
}

// Config groups everything a run needs. It is built once at startup and
// passed into the pipeline; nothing reads ambient globals.
type Config struct {
	PubMed PubMedConfig `json:"pubmed" yaml:"pubmed" mapstructure:"pubmed"`
	SMTP   SMTPConfig   `json:"smtp" yaml:"smtp" mapstructure:"smtp"`
	Output OutputConfig `json:"output" yaml:"output" mapstructure:"output"`

	// Journals is the fixed, ordered journal table.
	Journals []JournalRule `json:"journals" yaml:"journals" mapstructure:"-"`

	// KeywordPattern is the case-insensitive whole-word alternation used by KeywordFilter.
	KeywordPattern string `json:"keyword_pattern" yaml:"keyword_pattern" mapstructure:"-"`
}

// DefaultJournals is the journal table the digest covers, in query order.
var DefaultJournals = []JournalRule{
	{Name: "Retina (Philadelphia, Pa.)", Mode: AcceptAll},
	{Name: "Am J Ophthalmol", Mode: KeywordFilter},
	{Name: "Ophthalmology", Mode: KeywordFilter},
	{Name: "Invest Ophthalmol Vis Sci", Mode: KeywordFilter},
	{Name: "Br J Ophthalmol", Mode: KeywordFilter},
}

// DefaultKeywordPattern matches retina-related terms on word boundaries.
const DefaultKeywordPattern = `(?i)\b(retina|retinal|macula|macular|choroid|choroidal|vitreoretinal|` +
	`vitreous|uveitis|anti-vegf|vegf|amd|age-related macular|` +
	`diabetic retinopathy|dme|retinal detachment|rrd|pvr|` +
	`epiretinal|macular hole|central serous|csc|pachychoroid)\b`

// DefaultConfig returns a Config with every default filled in and no credentials.
func DefaultConfig() Config {
	journals := make([]JournalRule, len(DefaultJournals))
	copy(journals, DefaultJournals)

	return Config{
		PubMed: PubMedConfig{
			HTTPConfig: HTTPConfig{
				UserAgent:     "pubmed-digest/0.1",
				SearchTimeout: 30 * time.Second,
				FetchTimeout:  90 * time.Second,
			},
			BaseURL:     "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			Database:    "pubmed",
			Tool:        "oph-weekly-digest",
			Delay:       350 * time.Millisecond,
			KeyedDelay:  120 * time.Millisecond,
			SearchBatch: 500,
			FetchBatch:  200,
		},
		SMTP: SMTPConfig{
			Host:    "smtp.gmail.com",
			Port:    587,
			Timeout: 30 * time.Second,
		},
		Output: OutputConfig{
			StatePath: "pubmed_oph_state.json",
			Dir:       "pubmed_digests",
			TopN:      5,
		},
		Journals:       journals,
		KeywordPattern: DefaultKeywordPattern,
	}
}

// Validate reports configuration that would make every run fail.
func (c Config) Validate() error {
	if len(c.Journals) == 0 {
		return fmt.Errorf("%w: no journals configured", ErrConfiguration)
	}
	for _, j := range c.Journals {
		if j.Name == "" {
			return fmt.Errorf("%w: journal with empty name", ErrConfiguration)
		}
		if j.Mode != AcceptAll && j.Mode != KeywordFilter {
			return fmt.Errorf("%w: journal %q has unknown mode %q", ErrConfiguration, j.Name, j.Mode)
		}
	}
	if c.PubMed.BaseURL == "" {
		return fmt.Errorf("%w: pubmed.base_url is empty", ErrConfiguration)
	}
	if c.Output.StatePath == "" || c.Output.Dir == "" {
		return fmt.Errorf("%w: output.state_path and output.dir are required", ErrConfiguration)
	}
	return nil
}
