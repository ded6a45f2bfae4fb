// Package config loads the relaymatrix configuration.
//
// Configuration is read from config.yaml inside a single directory, by
// default ~/.config/relaymatrix. A missing file is not an error: the defaults
// from GetDefaultConfig are used. Values in the file override the defaults
// field by field, and command line flags override both.
//
// Relative paths in the file (matrix, suite catalog, package index,
// quarantine list, report) are resolved against the configuration directory.
//
// Example config.yaml:
//
//	parallel: 4
//	caseConcurrency: 2
//	caseTimeout: 15m
//	backend: local
//	suitePath: suite.yaml
//	indexPath: index.yaml
//	quarantinePath: quarantine.yaml
//	acquire:
//	  retries: 2
//	  retryDelay: 5s
//	logging:
//	  level: info
//	  format: json
package config
