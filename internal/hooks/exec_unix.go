// Process invocation for Unix-like systems: command lines go through
// /bin/sh and scripts must carry an execute bit.

//go:build !windows

package hooks

import "io/fs"

// shellCommand returns the argv that runs line through the shell.
func shellCommand(line string) (string, []string) {
	return "/bin/sh", []string{"-c", line}
}

// scriptCommand returns the argv that runs the script at path. The script's
// own interpreter line applies.
func scriptCommand(path string) (string, []string) {
	return path, nil
}

// runnable reports whether a script file may be executed.
func runnable(_ string, info fs.FileInfo) bool {
	return info.Mode().Perm()&0o111 != 0
}
