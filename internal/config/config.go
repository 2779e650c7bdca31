package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/template"
	"time"
	_ "time/tzdata"

	"checkinbot/internal/blockchain"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrInvalid marks every configuration failure; the process must not start
// polling when Load returns it.
var ErrInvalid = errors.New("invalid configuration")

const (
	DefaultPath = "config.yaml"

	FieldOnboarder = "onboarder"
	FieldImage     = "image"
)

type Beneficiary struct {
	Account string `yaml:"account"`
	Weight  int    `yaml:"weight"`
}

type RequiredMetadata struct {
	App            string      `yaml:"app"`
	Developer      string      `yaml:"developer"`
	Tags           []string    `yaml:"tags"`
	Beneficiary    Beneficiary `yaml:"beneficiary"`
	Country        string      `yaml:"country"`
	RequiredFields []string    `yaml:"required_fields"`
}

type Match struct {
	// Normalize trims and case-folds string fields before comparing.
	Normalize bool `yaml:"normalize"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Log struct {
	File      string `yaml:"file"`
	ErrorFile string `yaml:"error_file"`
	Level     string `yaml:"level"`
	Console   bool   `yaml:"console"`
}

type Config struct {
	Community        string           `yaml:"community"`
	RequiredMetadata RequiredMetadata `yaml:"required_metadata"`
	Match            Match            `yaml:"match"`
	MinBodyLength    int              `yaml:"min_body_length"`

	TransferAmount    string `yaml:"transfer_amount"`
	TransferAsset     string `yaml:"transfer_asset"`
	TransferMemo      string `yaml:"transfer_memo"`
	WelcomeMessage    string `yaml:"welcome_message"`
	VotePercentage    int    `yaml:"vote_percentage"`
	MaxDailyTransfers int    `yaml:"max_daily_transfers"`
	MinAccountBalance string `yaml:"min_account_balance"`

	CheckInterval time.Duration `yaml:"check_interval"`
	MaxPostAge    time.Duration `yaml:"max_post_age"`
	FetchLimit    int           `yaml:"fetch_limit"`
	FetchPages    int           `yaml:"fetch_pages"`
	Timezone      string        `yaml:"timezone"`

	DryRun              bool `yaml:"dry_run"`
	DryRunConsumesSlots bool `yaml:"dry_run_consumes_slots"`

	DatabaseFile  string `yaml:"database_file"`
	HTTP          HTTP   `yaml:"http"`
	StatsSchedule string `yaml:"stats_schedule"`
	Log           Log    `yaml:"log"`

	// Secrets come from the environment only.
	Account    string `yaml:"-"`
	PostingKey string `yaml:"-"`
	ActiveKey  string `yaml:"-"`
	NodeURL    string `yaml:"-"`

	transfer   blockchain.Asset
	minBalance decimal.Decimal
	location   *time.Location
	welcome    *template.Template
	memo       *template.Template
}

// Defaults returns the configuration used for every setting the file omits.
func Defaults() *Config {
	return &Config{
		RequiredMetadata: RequiredMetadata{
			RequiredFields: []string{FieldOnboarder, FieldImage},
		},
		TransferAmount:      "1.000",
		TransferAsset:       blockchain.AssetHBD,
		TransferMemo:        "Welcome to Hive, @{{.Author}}!",
		WelcomeMessage:      "Welcome to Hive, @{{.Author}}! Thanks to @{{.Onboarder}} for bringing you in. You have received {{.Amount}} {{.Asset}} to get started.",
		VotePercentage:      100,
		MaxDailyTransfers:   10,
		MinAccountBalance:   "5.000",
		CheckInterval:       60 * time.Second,
		MaxPostAge:          24 * time.Hour,
		FetchLimit:          20,
		FetchPages:          1,
		Timezone:            "UTC",
		DryRunConsumesSlots: true,
		DatabaseFile:        "processed_posts.db",
		HTTP:                HTTP{Addr: ":8080"},
		StatsSchedule:       "@hourly",
		Log:                 Log{Level: "info", Console: true},
	}
}

// Path returns the config file path from the environment or the default.
func Path() string {
	if path := os.Getenv("CHECKINBOT_CONFIG"); path != "" {
		return path
	}
	return DefaultPath
}

// Load reads the YAML file at path, the optional .env file and the process
// environment, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config file: %v", ErrInvalid, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// a missing .env is fine, the variables may already be exported
	_ = godotenv.Load()
	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse decodes YAML over Defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parse config yaml: %v", ErrInvalid, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvironment() {
	c.Account = os.Getenv("HIVE_ACCOUNT_NAME")
	c.PostingKey = os.Getenv("HIVE_POSTING_KEY")
	c.ActiveKey = os.Getenv("HIVE_ACTIVE_KEY")
	c.NodeURL = os.Getenv("HIVE_NODE")
	if c.NodeURL == "" {
		c.NodeURL = blockchain.DefaultNodeURL
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks every setting and prepares the derived values. It must
// succeed before any accessor is used.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Community) == "" {
		return invalid("community is required")
	}

	if c.Account == "" {
		return invalid("HIVE_ACCOUNT_NAME is required")
	}
	if !c.DryRun && (c.PostingKey == "" || c.ActiveKey == "") {
		return invalid("HIVE_POSTING_KEY and HIVE_ACTIVE_KEY are required unless dry_run is set")
	}

	if err := c.RequiredMetadata.validate(); err != nil {
		return err
	}

	if c.MinBodyLength < 0 {
		return invalid("min_body_length must not be negative")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(c.TransferAmount))
	if err != nil || !amount.IsPositive() {
		return invalid("transfer_amount must be a positive decimal, got %q", c.TransferAmount)
	}
	c.transfer, err = blockchain.NewAsset(amount, c.TransferAsset)
	if err != nil {
		return invalid("transfer: %v", err)
	}

	c.minBalance, err = decimal.NewFromString(strings.TrimSpace(c.MinAccountBalance))
	if err != nil || c.minBalance.IsNegative() {
		return invalid("min_account_balance must be a non-negative decimal, got %q", c.MinAccountBalance)
	}

	if c.VotePercentage < 1 || c.VotePercentage > 100 {
		return invalid("vote_percentage must be within 1..100, got %d", c.VotePercentage)
	}
	if c.MaxDailyTransfers < 0 {
		return invalid("max_daily_transfers must not be negative")
	}
	if c.CheckInterval <= 0 {
		return invalid("check_interval must be positive")
	}
	if c.MaxPostAge < 0 {
		return invalid("max_post_age must not be negative")
	}
	if c.FetchLimit < 1 || c.FetchLimit > 20 {
		return invalid("fetch_limit must be within 1..20, got %d", c.FetchLimit)
	}
	if c.FetchPages < 1 {
		return invalid("fetch_pages must be at least 1")
	}

	c.location, err = time.LoadLocation(c.Timezone)
	if err != nil {
		return invalid("timezone %q: %v", c.Timezone, err)
	}

	c.welcome, err = template.New("welcome_message").Option("missingkey=error").Parse(c.WelcomeMessage)
	if err != nil {
		return invalid("welcome_message: %v", err)
	}
	c.memo, err = template.New("transfer_memo").Option("missingkey=error").Parse(c.TransferMemo)
	if err != nil {
		return invalid("transfer_memo: %v", err)
	}

	if c.DatabaseFile == "" {
		return invalid("database_file is required")
	}

	if c.StatsSchedule != "" {
		if _, err := cron.ParseStandard(c.StatsSchedule); err != nil {
			return invalid("stats_schedule %q: %v", c.StatsSchedule, err)
		}
	}

	return nil
}

func (m *RequiredMetadata) validate() error {
	if m.App == "" {
		return invalid("required_metadata.app is required")
	}
	if m.Developer == "" {
		return invalid("required_metadata.developer is required")
	}
	if m.Country == "" {
		return invalid("required_metadata.country is required")
	}
	if len(m.Tags) == 0 {
		return invalid("required_metadata.tags must list at least one tag")
	}
	if m.Beneficiary.Account == "" {
		return invalid("required_metadata.beneficiary.account is required")
	}
	if m.Beneficiary.Weight < 1 || m.Beneficiary.Weight > 10000 {
		return invalid("required_metadata.beneficiary.weight must be within 1..10000, got %d", m.Beneficiary.Weight)
	}
	for _, field := range m.RequiredFields {
		if field != FieldOnboarder && field != FieldImage {
			return invalid("required_metadata.required_fields: unknown field %q", field)
		}
	}
	return nil
}

// RequiresField reports whether the named presence check is enabled.
func (m *RequiredMetadata) RequiresField(field string) bool {
	return slices.Contains(m.RequiredFields, field)
}

func (c *Config) Transfer() blockchain.Asset {
	return c.transfer
}

func (c *Config) MinBalance() decimal.Decimal {
	return c.minBalance
}

func (c *Config) Location() *time.Location {
	return c.location
}

func (c *Config) WelcomeTemplate() *template.Template {
	return c.welcome
}

func (c *Config) MemoTemplate() *template.Template {
	return c.memo
}
