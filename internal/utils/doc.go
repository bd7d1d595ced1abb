// Package utils hosts shared infrastructure for the gerrit-bridge CLI:
// the zap logger factory with optional log-file tee and the Viper-backed
// configuration loader.
package utils
