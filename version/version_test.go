package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestFromBuildInfo_VCSSettings(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v1.4.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := fromBuildInfo(bi, true)

	if info.Version != "v1.4.0" {
		t.Fatalf("expected module version, got %q", info.Version)
	}
	if info.GitCommit != "0123456" {
		t.Fatalf("expected short commit, got %q", info.GitCommit)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("expected vcs time, got %q", info.BuildTime)
	}
	if !info.Dirty {
		t.Fatalf("expected dirty build")
	}
	if info.Short() != "v1.4.0-0123456-dirty" {
		t.Fatalf("unexpected short version %q", info.Short())
	}
}

func TestFromBuildInfo_LinkTimeValuesWin(t *testing.T) {
	Version, GitCommit = "1.2.0", "feedbee"
	defer func() { Version, GitCommit = "dev", "" }()

	info := fromBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}},
	}, true)
	if info.Version != "1.2.0" || info.GitCommit != "feedbee" {
		t.Fatalf("expected link-time values, got %+v", info)
	}
}

func TestFromBuildInfo_Missing(t *testing.T) {
	info := fromBuildInfo(nil, false)
	if info.Version != "dev" {
		t.Fatalf("expected dev, got %q", info.Version)
	}
	if info.GoVersion == "" || info.Platform == "" {
		t.Fatalf("expected runtime values, got %+v", info)
	}
}

func TestInfo_String(t *testing.T) {
	s := Info{Version: "1.0.0", GoVersion: "go1.26.0", Platform: "linux/amd64"}.String()
	if !strings.HasPrefix(s, "pipegraph 1.0.0 (go1.26.0, linux/amd64)") {
		t.Fatalf("unexpected version line %q", s)
	}
}
