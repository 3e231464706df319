package config

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the automatic environment variable for every flag,
// e.g. NEWRELIC_EXPORTER_LISTEN_ADDRESS.
const EnvPrefix = "NEWRELIC_EXPORTER"

// Flag keys. They double as viper keys.
const (
	ConfigPathKey         = "config"
	APIKeyKey             = "api-key"
	AccountNumberKey      = "account-number"
	EndpointKey           = "endpoint"
	TimeoutKey            = "timeout"
	DeploymentWindowKey   = "deployment-window"
	InsecureSkipVerifyKey = "insecure-skip-verify"
	ListenAddressKey      = "listen-address"
	MetricsPathKey        = "metrics-path"
	LogLevelKey           = "log-level"
	LogFormatKey          = "log-format"
)

// Environment variables accepted for the credentials in addition to the
// prefixed ones.
var (
	apiKeyEnvs        = []string{"APIKEY", "NEWRELIC_API_KEY"}
	accountNumberEnvs = []string{"NEWRELIC_ACCOUNT_NUMBER"}
)

// RegisterFlags defines the exporter flags on fs and binds them, and their
// environment variables, into v.
func RegisterFlags(fs *flag.FlagSet, v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.StringP(ConfigPathKey, "c", "", "Path to an optional YAML config file.")
	fs.StringP(APIKeyKey, "a", "", "New Relic user API key (env APIKEY).")
	fs.StringP(AccountNumberKey, "n", "", "New Relic account number (env NEWRELIC_ACCOUNT_NUMBER).")
	fs.String(EndpointKey, DefaultEndpoint, "NerdGraph endpoint URL.")
	fs.Duration(TimeoutKey, DefaultTimeout, "Timeout for each upstream query.")
	fs.Duration(DeploymentWindowKey, DefaultDeploymentWindow, "Trailing window for deployment markers.")
	fs.Bool(InsecureSkipVerifyKey, false, "Skip TLS verification of the NerdGraph endpoint.")
	fs.String(ListenAddressKey, DefaultListenAddress, "Address the exposition server listens on.")
	fs.String(MetricsPathKey, DefaultMetricsPath, "Path under which metrics are exposed.")
	fs.String(LogLevelKey, DefaultLogLevel, "Log level: debug, info, warn or error.")
	fs.String(LogFormatKey, DefaultLogFormat, "Log format: json or text.")

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("config: bind flags: %w", err)
	}
	if err := v.BindEnv(append([]string{APIKeyKey}, apiKeyEnvs...)...); err != nil {
		return fmt.Errorf("config: bind env: %w", err)
	}
	if err := v.BindEnv(append([]string{AccountNumberKey}, accountNumberEnvs...)...); err != nil {
		return fmt.Errorf("config: bind env: %w", err)
	}
	return nil
}

// Resolve loads the config file named by v, overlays every flag or
// environment variable that was explicitly set, and validates the result.
// Precedence: flag, then environment, then file, then defaults.
func Resolve(v *viper.Viper) (*Config, error) {
	cfg, err := Load(v.GetString(ConfigPathKey))
	if err != nil {
		return nil, err
	}

	overlayString(v, APIKeyKey, &cfg.NewRelic.APIKey)
	overlayString(v, AccountNumberKey, &cfg.NewRelic.AccountNumber)
	overlayString(v, EndpointKey, &cfg.NewRelic.Endpoint)
	overlayString(v, ListenAddressKey, &cfg.Exporter.ListenAddress)
	overlayString(v, MetricsPathKey, &cfg.Exporter.MetricsPath)
	overlayString(v, LogLevelKey, &cfg.Log.Level)
	overlayString(v, LogFormatKey, &cfg.Log.Format)
	if v.IsSet(TimeoutKey) {
		cfg.NewRelic.Timeout = v.GetDuration(TimeoutKey)
	}
	if v.IsSet(DeploymentWindowKey) {
		cfg.NewRelic.DeploymentWindow = v.GetDuration(DeploymentWindowKey)
	}
	if v.IsSet(InsecureSkipVerifyKey) {
		cfg.NewRelic.TLS.InsecureSkipVerify = v.GetBool(InsecureSkipVerifyKey)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func overlayString(v *viper.Viper, key string, dst *string) {
	if v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
