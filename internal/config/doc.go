// Package config holds the harness configuration.
//
// Configuration is built once at startup and passed by value:
//
//	cfg, err := config.FromEnv(os.LookupEnv)
//	if err != nil {
//	    return err // *ConfigError: aborts the run before any work
//	}
//
// The two required values come from the environment:
//
//   - OPENSBLI_INSTALL: installation root holding apps/ and apps/Makefile
//   - OPS_TRANSLATOR: directory containing the OPS translator (ops.py)
//
// Everything else has a default and may be overridden by a YAML manifest:
//
//	apps:
//	  - wave/wave.py
//	  - euler_wave/euler_wave.py
//	jobs: 8
//	targets: [opensbli_seq, opensbli_mpi]
//	cleanup: false
//	stages:
//	  compile: false
//
// Manifests are decoded strictly (unknown keys are rejected) and then
// checked against the embedded CUE schema in manifest.cue.
package config
