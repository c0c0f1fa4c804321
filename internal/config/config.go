package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultAddress is the exchange contract whose fills are aggregated.
const DefaultAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

// Config holds configuration values loaded from flags, env, or config file.
// An empty Topic0 selects the decoder's event topic.
type Config struct {
	RPCURL      string
	Address     string
	Topic0      string
	Date        string
	WindowStart string
	WindowEnd   string

	MaxSpan      uint32
	Workers      int
	CallDelay    time.Duration
	CallTimeout  time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	BlockTime    time.Duration
	HintMargin   uint64

	OutDir      string
	HeadFile    string
	RangeFile   string
	SummaryFile string
	FillsOut    string
	ErrorsOut   string
	FirstLogOut string

	ABIFile     string
	EventName   string
	AmountField string

	PGDSN       string
	RedisURL    string
	RedisTTL    time.Duration
	MetricsAddr string
	LogLevel    string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("FILLSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("address", DefaultAddress)
	v.SetDefault("max-span", 2000)
	v.SetDefault("workers", 4)
	v.SetDefault("call-delay", 250*time.Millisecond)
	v.SetDefault("call-timeout", 10*time.Second)
	v.SetDefault("max-attempts", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("block-time", 2*time.Second)
	v.SetDefault("hint-margin", uint64(2000))
	v.SetDefault("out-dir", "./data")
	v.SetDefault("head-file", "current_block.json")
	v.SetDefault("range-file", "block_range.json")
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:       v.GetString("rpc"),
		Address:      v.GetString("address"),
		Topic0:       v.GetString("topic0"),
		Date:         v.GetString("date"),
		WindowStart:  v.GetString("window-start"),
		WindowEnd:    v.GetString("window-end"),
		MaxSpan:      v.GetUint32("max-span"),
		Workers:      v.GetInt("workers"),
		CallDelay:    v.GetDuration("call-delay"),
		CallTimeout:  v.GetDuration("call-timeout"),
		MaxAttempts:  v.GetInt("max-attempts"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		BlockTime:    v.GetDuration("block-time"),
		HintMargin:   v.GetUint64("hint-margin"),
		OutDir:       v.GetString("out-dir"),
		HeadFile:     v.GetString("head-file"),
		RangeFile:    v.GetString("range-file"),
		SummaryFile:  v.GetString("summary-file"),
		FillsOut:     v.GetString("fills-out"),
		ErrorsOut:    v.GetString("errors-out"),
		FirstLogOut:  v.GetString("first-log-out"),
		ABIFile:      v.GetString("abi-file"),
		EventName:    v.GetString("event"),
		AmountField:  v.GetString("amount-field"),
		PGDSN:        v.GetString("pg-dsn"),
		RedisURL:     v.GetString("redis-url"),
		RedisTTL:     v.GetDuration("redis-ttl"),
		MetricsAddr:  v.GetString("metrics-addr"),
		LogLevel:     v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings every command depends on. It does not
// require a window; see Window.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.RPCURL) == "" {
		errs = append(errs, errors.New("rpc url is required"))
	}
	if !common.IsHexAddress(strings.TrimSpace(c.Address)) {
		errs = append(errs, fmt.Errorf("invalid address: %q", c.Address))
	}
	if c.Topic0 != "" {
		if b, err := hexutil.Decode(strings.TrimSpace(c.Topic0)); err != nil || len(b) != common.HashLength {
			errs = append(errs, fmt.Errorf("invalid topic0: %q", c.Topic0))
		}
	}
	if c.MaxSpan == 0 {
		errs = append(errs, errors.New("max-span must be greater than zero"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be greater than zero"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max-attempts must be greater than zero"))
	}
	if c.CallDelay < 0 || c.CallTimeout < 0 || c.RetryBackoff < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if c.ABIFile != "" && (c.EventName == "" || c.AmountField == "") {
		errs = append(errs, errors.New("abi-file requires event and amount-field"))
	}
	if c.Date != "" && c.WindowStart != "" {
		errs = append(errs, errors.New("date and window-start are mutually exclusive"))
	}
	if c.Date != "" || c.WindowStart != "" {
		if _, err := c.Window(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
