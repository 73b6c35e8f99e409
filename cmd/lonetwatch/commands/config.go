package commands

import (
	"context"
	"time"

	"lonetwatch/lib/configutil"
	"lonetwatch/lib/restyutil"
	"lonetwatch/lib/scrapers/lonet"
	"lonetwatch/lib/secrets"
	"lonetwatch/lib/serviceutil"
)

type Config struct {
	// Discord bot token
	Token string `json:"token"`
	// base url of the lo-net2 instance
	BaseUrl string `json:"base_url"`
	// class link text to follow from the start page, e.g. "Klasse 10d"
	ClassName       string `json:"class_name"`
	CredentialsFile string `json:"credentials_file"`
	IndexFile       string `json:"index_file"`
	IntervalMinutes int    `json:"interval_minutes"`
	// parse deadlines with the historic minute/second layout
	LegacyDeadlineFormat bool `json:"legacy_deadline_format"`
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}
	if cfg.BaseUrl == "" {
		cfg.BaseUrl = "https://www.lo-net2.de"
	}
	if cfg.CredentialsFile == "" {
		cfg.CredentialsFile = "creds.json"
	}
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.json"
	}
	return cfg
}

func (c Config) interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func restyOutput() restyutil.InstrumentOutput {
	if !*verbose {
		return nil
	}
	return restyutil.NewFilesystemOutput(".dev/resty/lonet")
}

// newCollect builds the plan collector the notifier runs every cycle.
// Each collection uses a fresh session so cookie or sid expiry never
// carries over between cycles.
func newCollect(cfg Config) (func(ctx context.Context) (lonet.Plan, error), error) {
	creds, err := secrets.Load(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context) (lonet.Plan, error) {
		client, err := lonet.NewClient(lonet.ClientOptions{
			BaseUrl:          cfg.BaseUrl,
			InstrumentOutput: restyOutput(),
		})
		if err != nil {
			return lonet.Plan{}, err
		}
		return lonet.CollectPlan(ctx, client, lonet.CollectOptions{
			Username:             creds.Username,
			Password:             creds.Password,
			ClassName:            cfg.ClassName,
			LegacyDeadlineFormat: cfg.LegacyDeadlineFormat,
		})
	}, nil
}
