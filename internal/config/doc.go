// Package config defines the service settings and loads them with viper from
// defaults, an optional config.yaml and TASKTRAIL_ environment variables.
// Loaded values are checked with validator before use.
package config
