// Package config resolves the exporter configuration.
//
// Top-level types:
//   - Config{NewRelic, Exporter, Log}: full config tree parsed from YAML
//   - NewRelicConfig: endpoint, api_key / api_key_env, account_number,
//     timeout, deployment_window, tls
//   - ExporterConfig: listen_address, metrics_path
//   - LogConfig: level, format
//
// Load(path) reads the optional YAML file and applies defaults (port 9126,
// /metrics, 10s timeout, 1h deployment window). RegisterFlags and Resolve
// layer cobra/pflag flags and environment variables (via viper) on top and
// run the full validation: a missing API key or a non-integer account
// number is ErrInvalidConfig.
//
// Watch(ctx, path, onChange) uses fsnotify to re-read the file on change;
// the exporter uses it to hot-reload the log level.
package config
