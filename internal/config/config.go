package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/davilam/campaign-reports-go/internal/models"
)

// ChannelSource declares one (campaign, channel, tab) source: where to
// read and how raw columns map onto the canonical schema. Immutable
// once loaded.
type ChannelSource struct {
	Channel         string            `mapstructure:"channel"`
	SpreadsheetID   string            `mapstructure:"spreadsheet_id"`
	Tab             string            `mapstructure:"tab"`
	Range           string            `mapstructure:"range"`
	Mapping         map[string]string `mapstructure:"mapping"` // raw header -> canonical field
	PublisherColumn string            `mapstructure:"publisher_column"`
	ExtraColumns    map[string]string `mapstructure:"extra_columns"` // raw header -> extra metric name
}

// FieldColumns inverts the declared mapping: canonical field -> raw header.
func (s ChannelSource) FieldColumns() map[string]string {
	out := make(map[string]string, len(s.Mapping))
	for raw, canonical := range s.Mapping {
		out[canonical] = raw
	}
	return out
}

type Campaign struct {
	Key             string             `mapstructure:"key"`
	Client          string             `mapstructure:"client"`
	Name            string             `mapstructure:"name"`
	ContractVersion int                `mapstructure:"contract_version"`
	Start           string             `mapstructure:"start"` // YYYY-MM-DD
	End             string             `mapstructure:"end"`
	Schedule        string             `mapstructure:"schedule"` // cron expression
	Budgets         map[string]float64 `mapstructure:"budgets"`
	KPIType         string             `mapstructure:"kpi_type"`
	KPIValue        float64            `mapstructure:"kpi_value"`
	KPITarget       float64            `mapstructure:"kpi_target"`
	Channels        []ChannelSource    `mapstructure:"channels"`
}

func (c Campaign) Contract() (models.Contract, error) {
	start, err := time.Parse("2006-01-02", c.Start)
	if err != nil {
		return models.Contract{}, fmt.Errorf("campaign %s: bad start %q: %w", c.Key, c.Start, err)
	}
	end, err := time.Parse("2006-01-02", c.End)
	if err != nil {
		return models.Contract{}, fmt.Errorf("campaign %s: bad end %q: %w", c.Key, c.End, err)
	}
	if end.Before(start) {
		return models.Contract{}, fmt.Errorf("campaign %s: end before start", c.Key)
	}
	return models.Contract{
		Client:   c.Client,
		Campaign: c.Name,
		Version:  c.ContractVersion,
		Start:    start,
		End:      end,
		Budgets:  c.Budgets,
		KPI:      models.KPI{Type: c.KPIType, Value: c.KPIValue, Target: c.KPITarget},
	}, nil
}

type Config struct {
	Port             string        `mapstructure:"port"`
	HTTPTimeout      time.Duration `mapstructure:"-"`
	LogLevel         slog.Level    `mapstructure:"-"`
	ProviderURL      string        `mapstructure:"provider_url"`
	ProviderToken    string        `mapstructure:"provider_token"`
	PostgresDSN      string        `mapstructure:"postgres_dsn"`
	SQLitePath       string        `mapstructure:"sqlite_path"`
	TemplatePath     string        `mapstructure:"template_path"`
	FetchParallelism int           `mapstructure:"fetch_parallelism"`
	MaxRetries       int           `mapstructure:"max_retries"`
	StageTimeoutSec  int           `mapstructure:"stage_timeout_seconds"`
	SchemaTolerance  int           `mapstructure:"schema_mismatch_tolerance"`
	HTTPTimeoutSec   int           `mapstructure:"http_timeout_seconds"`
	TopPublishers    int           `mapstructure:"top_publishers"`
	LogLevelName     string        `mapstructure:"log_level"`
	Campaigns        []Campaign    `mapstructure:"campaigns"`
}

func (c Config) StageTimeout() time.Duration {
	return time.Duration(c.StageTimeoutSec) * time.Second
}

// Load builds the Config once from an optional YAML file plus env
// overlay. Components receive it by injection, never via globals.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("http_timeout_seconds", 15)
	v.SetDefault("stage_timeout_seconds", 60)
	v.SetDefault("fetch_parallelism", 4)
	v.SetDefault("max_retries", 3)
	v.SetDefault("schema_mismatch_tolerance", 3)
	v.SetDefault("top_publishers", 5)
	v.SetDefault("sqlite_path", "report-cache.db")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("REPORTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
	cfg.LogLevel = slog.LevelInfo
	if cfg.LogLevelName == "debug" {
		cfg.LogLevel = slog.LevelDebug
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects bad declarations at load time so the pipeline never
// sees an unmapped canonical field it did not expect.
func (c Config) validate() error {
	seen := map[string]struct{}{}
	for _, camp := range c.Campaigns {
		if camp.Key == "" {
			return fmt.Errorf("config: campaign without key")
		}
		if _, dup := seen[camp.Key]; dup {
			return fmt.Errorf("config: duplicate campaign key %q", camp.Key)
		}
		seen[camp.Key] = struct{}{}
		if _, err := camp.Contract(); err != nil {
			return err
		}
		for _, ch := range camp.Channels {
			if ch.Channel == "" {
				return fmt.Errorf("config: campaign %s: channel without name", camp.Key)
			}
			targets := map[string]string{}
			for raw, canonical := range ch.Mapping {
				if !models.IsCanonicalField(canonical) {
					return fmt.Errorf("config: campaign %s channel %s: %q maps to unknown canonical field %q",
						camp.Key, ch.Channel, raw, canonical)
				}
				if prev, dup := targets[canonical]; dup {
					return fmt.Errorf("config: campaign %s channel %s: canonical field %q mapped twice (%q, %q)",
						camp.Key, ch.Channel, canonical, prev, raw)
				}
				targets[canonical] = raw
			}
			if _, ok := targets[models.FieldDate]; !ok {
				return fmt.Errorf("config: campaign %s channel %s: mapping must cover %q",
					camp.Key, ch.Channel, models.FieldDate)
			}
		}
	}
	return nil
}

// FindCampaign returns the declared campaign for a key.
func (c Config) FindCampaign(key string) (Campaign, bool) {
	for _, camp := range c.Campaigns {
		if camp.Key == key {
			return camp, true
		}
	}
	return Campaign{}, false
}
