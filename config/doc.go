// Package config loads the process configuration of cmd/authcore from a
// YAML file, a .env file and the environment, in that order of precedence
// from lowest to highest.
package config
