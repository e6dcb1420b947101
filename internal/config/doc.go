// Package config defines configuration structures for the gribgrab CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (GRIBGRAB_ prefix)
//   - YAML configuration file
//
// # Example file
//
//	cycle: "2025083000"
//	resolution: 0.25
//	horizon: 48
//	min_step: 3
//	patterns:
//	  - '.*:UGRD:10 m above ground:.*'
//	  - '.*:VGRD:10 m above ground:.*'
//	file_template: "gfs.t%Hz.{step}.grb2"
//	workers: 4
//	retry:
//	  attempts: 5
//	  backoff: 1s
//	  max_backoff: 30s
//
// Validation runs once, before any network activity: the resolution must
// be one of the supported grid spacings, and merge_file and file_template
// are mutually exclusive.
package config
