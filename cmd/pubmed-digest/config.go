// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/pubmed-digest/internal/secrets"
	"github.com/pdiddy/pubmed-digest/pkg/types"
)

// loadConfig layers defaults, the config file and environment (via viper),
// the secrets directory, and finally any output flags set on cmd.
func loadConfig(cmd *cobra.Command) (types.Config, error) {
	cfg := types.DefaultConfig()

	setString(&cfg.PubMed.BaseURL, "pubmed.base_url")
	setString(&cfg.PubMed.Tool, "pubmed.tool")
	setString(&cfg.PubMed.Email, "pubmed.email")
	setString(&cfg.PubMed.APIKey, "pubmed.api_key")
	setString(&cfg.PubMed.UserAgent, "pubmed.user_agent")
	setDuration(&cfg.PubMed.SearchTimeout, "pubmed.search_timeout")
	setDuration(&cfg.PubMed.FetchTimeout, "pubmed.fetch_timeout")
	setDuration(&cfg.PubMed.Delay, "pubmed.delay")
	setDuration(&cfg.PubMed.KeyedDelay, "pubmed.keyed_delay")
	setInt(&cfg.PubMed.SearchBatch, "pubmed.search_batch")
	setInt(&cfg.PubMed.FetchBatch, "pubmed.fetch_batch")

	setString(&cfg.SMTP.Host, "smtp.host")
	setInt(&cfg.SMTP.Port, "smtp.port")
	setString(&cfg.SMTP.Sender, "smtp.sender")
	setString(&cfg.SMTP.Password, "smtp.password")
	setString(&cfg.SMTP.Recipient, "smtp.recipient")
	setDuration(&cfg.SMTP.Timeout, "smtp.timeout")

	setString(&cfg.Output.StatePath, "output.state_path")
	setString(&cfg.Output.Dir, "output.dir")
	setInt(&cfg.Output.TopN, "output.top_n")
	if viper.IsSet("output.html") {
		cfg.Output.HTML = viper.GetBool("output.html")
	}

	setString(&cfg.KeywordPattern, "keyword_pattern")
	if viper.IsSet("journals") {
		var rules []types.JournalRule
		if err := viper.UnmarshalKey("journals", &rules); err != nil {
			return cfg, fmt.Errorf("%w: parsing journals: %v", types.ErrConfiguration, err)
		}
		cfg.Journals = rules
	}

	cfg.PubMed.Email = secretDefault(secrets.NCBIEmail, cfg.PubMed.Email)
	cfg.PubMed.APIKey = secretDefault(secrets.NCBIAPIKey, cfg.PubMed.APIKey)
	cfg.SMTP.Sender = secretDefault(secrets.EmailSender, cfg.SMTP.Sender)
	cfg.SMTP.Password = secretDefault(secrets.EmailPassword, cfg.SMTP.Password)
	cfg.SMTP.Recipient = secretDefault(secrets.EmailReceiver, cfg.SMTP.Recipient)

	flags := cmd.Flags()
	if f := flags.Lookup("state"); f != nil && f.Changed {
		cfg.Output.StatePath = f.Value.String()
	}
	if f := flags.Lookup("out-dir"); f != nil && f.Changed {
		cfg.Output.Dir = f.Value.String()
	}
	if f := flags.Lookup("html"); f != nil && f.Changed {
		cfg.Output.HTML, _ = flags.GetBool("html")
	}
	if f := flags.Lookup("top-n"); f != nil && f.Changed {
		cfg.Output.TopN, _ = flags.GetInt("top-n")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setString(dst *string, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetString(key)
	}
}

func setInt(dst *int, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetInt(key)
	}
}

func setDuration(dst *time.Duration, key string) {
	if viper.IsSet(key) {
		*dst = viper.GetDuration(key)
	}
}
