// Package config loads the pipegraph configuration.
//
// Values come from, in increasing precedence: built-in defaults, a YAML
// file (pipegraph.yml in the working directory or ./config, or
// ~/.config/pipegraph/config.yml), a .env file and PIPEGRAPH_-prefixed
// environment variables whose underscores map to nested keys:
//
//	PIPEGRAPH_ENGINE_MAX_CONCURRENCY=4   -> engine.max_concurrency
//	PIPEGRAPH_DOCKER_PULL_POLICY=never   -> docker.pull_policy
//
// Usage:
//
//	cfg, err := config.Load(config.WithConfigFile("ci/pipegraph.yml"))
package config
