// Process invocation for Windows: command lines go through cmd.exe and
// scripts are selected by extension.

//go:build windows

package hooks

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// shellCommand returns the argv that runs line through cmd.exe.
func shellCommand(line string) (string, []string) {
	return "cmd.exe", []string{"/C", line}
}

// scriptCommand returns the argv that runs the script at path.
func scriptCommand(path string) (string, []string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ps1":
		return "powershell.exe", []string{"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass", "-File", path}
	case ".bat", ".cmd":
		return "cmd.exe", []string{"/C", path}
	default:
		return path, nil
	}
}

// runnable reports whether a script file may be executed.
func runnable(name string, _ fs.FileInfo) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".exe", ".bat", ".cmd", ".ps1":
		return true
	}
	return false
}
