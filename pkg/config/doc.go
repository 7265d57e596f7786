// Package config loads the vapordeck application configuration from
// environment variables and an optional YAML file.
//
// Environment variables use the VAPORDECK_ prefix and take precedence
// over the file. Load returns a fully defaulted, validated Config:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	store, err := config.OpenStore(ctx, cfg, parser, logger)
package config
