// Package version reports the build of the pipegraph binary.
//
// Values are set at link time and fall back to the module's VCS stamp:
//
//	go build -ldflags "-X github.com/kbukum/pipegraph/version.Version=1.2.0" ./cmd/pipegraph
package version
