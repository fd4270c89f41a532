// Package docker runs pipeline steps inside Docker containers.
//
// Each step gets a fresh container created from the step's image, which may
// reference matrix values (e.g. "golang:${matrix.go}"). The step's run text
// is passed to the configured shell as the container entrypoint, the step
// environment is the same one the shell executor exports, and stdout and
// stderr are demultiplexed into the step output. The container is removed
// when the step ends.
//
// A non-zero exit code is a step failure. An image that cannot be pulled, a
// daemon error or a container killed because its context ended is an
// executor error.
//
//	exec, err := docker.New(cfg, log)
//	if err != nil { ... }
//	defer exec.Close()
//	registry.Register("docker", exec)
package docker
