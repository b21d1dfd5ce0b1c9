package cmd

import (
	"strconv"
	"strings"
	"time"

	consts "github.com/khanhnv2901/headerscope/internal/shared/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultAddr            = "127.0.0.1:8080"
	defaultShutdownTimeout = 30 * time.Second
	defaultRateLimit       = 10
	defaultRateBurst       = 20
	defaultConcurrency     = 4
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	LogLevel string
	Serve    ServeConfig
	Scan     ScanConfig
}

// ServeConfig holds the HTTP service settings.
type ServeConfig struct {
	Addr            string
	AuthToken       string
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int
	RateBurst       int
	TrustProxy      bool
}

// ScanConfig holds settings shared by the scan and serve commands.
type ScanConfig struct {
	Timeout      time.Duration
	WAFDetection bool
	Concurrency  int
}

// configBindings maps flag names onto config file / environment keys.
// HEADERSCOPE_SCAN_TIMEOUT=5s is equivalent to scan.timeout: 5s.
var configBindings = []struct {
	flag string
	key  string
}{
	{flag: "log-level", key: "log_level"},
	{flag: "addr", key: "serve.addr"},
	{flag: "auth-token", key: "serve.auth_token"},
	{flag: "shutdown-timeout", key: "serve.shutdown_timeout"},
	{flag: "cors-origins", key: "serve.cors_origins"},
	{flag: "rate-limit", key: "serve.rate_limit"},
	{flag: "rate-burst", key: "serve.rate_burst"},
	{flag: "trust-proxy", key: "serve.trust_proxy"},
	{flag: "timeout", key: "scan.timeout"},
	{flag: "concurrency", key: "scan.concurrency"},
}

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		LogLevel: "info",
		Serve: ServeConfig{
			Addr:            defaultAddr,
			ShutdownTimeout: defaultShutdownTimeout,
			RateLimit:       defaultRateLimit,
			RateBurst:       defaultRateBurst,
		},
		Scan: ScanConfig{
			Timeout:      consts.DefaultFetchTimeout,
			WAFDetection: true,
			Concurrency:  defaultConcurrency,
		},
	}
}

// applyConfigDefaults merges config file and environment values into the
// command's flags when the user did not explicitly set the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) error {
	flags := cmd.Flags()

	for _, b := range configBindings {
		if !viper.IsSet(b.key) {
			continue
		}
		value := viper.GetString(b.key)
		if b.flag == "cors-origins" {
			value = strings.Join(viper.GetStringSlice(b.key), ",")
		}
		if err := setStringFlagIfUnset(flags, b.flag, value); err != nil {
			return &InvalidSettingError{Name: b.key, Value: value, Reason: err.Error()}
		}
	}

	if viper.IsSet("scan.waf_detection") {
		enabled := viper.GetBool("scan.waf_detection")
		if err := setStringFlagIfUnset(flags, "no-waf-detection", strconv.FormatBool(!enabled)); err != nil {
			return &InvalidSettingError{Name: "scan.waf_detection", Value: viper.GetString("scan.waf_detection"), Reason: err.Error()}
		}
	}

	return nil
}

// setStringFlagIfUnset assigns value to a flag the user left at its
// default. Flags not defined on this command are ignored.
func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) error {
	if flags == nil {
		return nil
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return nil
	}
	return flag.Value.Set(value)
}

// load copies the resolved flag values into c. Flags that the running
// command does not define keep their defaults.
func (c *CLIConfig) load(cmd *cobra.Command) error {
	flags := cmd.Flags()

	if v, err := flags.GetString("log-level"); err == nil {
		c.LogLevel = v
	}

	if v, err := flags.GetString("addr"); err == nil {
		c.Serve.Addr = v
	}
	if v, err := flags.GetString("auth-token"); err == nil {
		c.Serve.AuthToken = v
	}
	if v, err := flags.GetDuration("shutdown-timeout"); err == nil {
		c.Serve.ShutdownTimeout = v
	}
	if v, err := flags.GetStringSlice("cors-origins"); err == nil {
		c.Serve.CORSOrigins = v
	}
	if v, err := flags.GetInt("rate-limit"); err == nil {
		c.Serve.RateLimit = v
	}
	if v, err := flags.GetInt("rate-burst"); err == nil {
		c.Serve.RateBurst = v
	}
	if v, err := flags.GetBool("trust-proxy"); err == nil {
		c.Serve.TrustProxy = v
	}

	if v, err := flags.GetDuration("timeout"); err == nil {
		c.Scan.Timeout = v
	}
	if v, err := flags.GetBool("no-waf-detection"); err == nil {
		c.Scan.WAFDetection = !v
	}
	if v, err := flags.GetInt("concurrency"); err == nil {
		c.Scan.Concurrency = v
	}

	return c.validate()
}

func (c *CLIConfig) validate() error {
	switch {
	case c.Scan.Timeout < consts.MinFetchTimeout:
		return &InvalidSettingError{Name: "timeout", Value: c.Scan.Timeout.String(), Reason: "must be at least " + consts.MinFetchTimeout.String()}
	case c.Scan.Concurrency < 1:
		return &InvalidSettingError{Name: "concurrency", Value: strconv.Itoa(c.Scan.Concurrency), Reason: "must be at least 1"}
	case c.Serve.RateLimit < 0:
		return &InvalidSettingError{Name: "rate-limit", Value: strconv.Itoa(c.Serve.RateLimit), Reason: "must not be negative"}
	case c.Serve.RateBurst < 0:
		return &InvalidSettingError{Name: "rate-burst", Value: strconv.Itoa(c.Serve.RateBurst), Reason: "must not be negative"}
	case c.Serve.ShutdownTimeout <= 0:
		return &InvalidSettingError{Name: "shutdown-timeout", Value: c.Serve.ShutdownTimeout.String(), Reason: "must be positive"}
	}
	return nil
}

// addScanFlags registers the probe settings shared by scan and serve.
func addScanFlags(flags *pflag.FlagSet) {
	flags.Duration("timeout", consts.DefaultFetchTimeout, "Timeout for each target request")
	flags.Bool("no-waf-detection", false, "Disable the firewall heuristic for zero-score responses")
}
