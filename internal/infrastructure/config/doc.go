// Package config loads and validates the Fleet Core configuration.
//
// Configuration is read once at startup from a YAML file, then overlaid with
// FLEETCORE_* environment variables so deployments can inject secrets (the
// credential sealing key, broker passwords, API keys) without writing them
// to disk:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//
// Validation runs after the overlay and reports every problem at once rather
// than failing on the first. The sealing key in particular must be a 64-hex
// string and is rejected otherwise, since a malformed key would make every
// stored device credential unrecoverable.
package config
