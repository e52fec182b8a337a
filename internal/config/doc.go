// Package config provides centralized configuration management for SPC Pulse.
//
// # Configuration Sources
//
// Configuration is assembled from three sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. A YAML configuration file
//	3. Default values (lowest priority)
//
// The YAML file is taken from SPC_CONFIG_FILE, or the first of config.yaml,
// configs/config.yaml and ../configs/config.yaml that exists.
//
// # Environment Variables
//
// All environment variables follow the pattern SPC_<SECTION>_<FIELD>:
//
//	SPC_SERVER_PORT=8080
//	SPC_LOGGING_LEVEL=debug
//	SPC_SECURITY_ALLOWED_ORIGINS=http://localhost:3000,https://qa.example.com
//	SPC_ANALYSIS_DEFAULT_LSL=495
//	SPC_ANALYSIS_DEFAULT_USL=505
//	SPC_ANALYSIS_CACHE_TTL=30m
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return fmt.Errorf("load config: %w", err)
//	}
//	srv := &http.Server{Addr: cfg.Server.Address()}
package config
