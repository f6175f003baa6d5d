package main

import (
	"runtime/debug"
)

// version is stamped by release builds with -ldflags "-X main.version=...".
var version = "dev"

// resolveVersion returns the stamped version, or for unstamped builds
// "dev+<short revision>" from the VCS info the toolchain embeds, with
// ".dirty" for a modified tree.
func resolveVersion() string {
	info, _ := debug.ReadBuildInfo()
	return versionFrom(version, info)
}

func versionFrom(stamped string, info *debug.BuildInfo) string {
	if stamped != "dev" || info == nil {
		return stamped
	}
	vcs := map[string]string{}
	for _, s := range info.Settings {
		vcs[s.Key] = s.Value
	}
	rev := vcs["vcs.revision"]
	if rev == "" {
		return stamped
	}
	v := "dev+" + rev[:min(len(rev), 7)]
	if vcs["vcs.modified"] == "true" {
		v += ".dirty"
	}
	return v
}
