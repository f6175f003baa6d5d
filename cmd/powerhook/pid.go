package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"tools.zach/dev/powerhook/internal/paths"
)

// ///////////////////////////////////////////////
// PID File
// ///////////////////////////////////////////////

// errLocked is returned by lockFile while another process holds the lock.
var errLocked = errors.New("locked by another process")

// pidFile is a daemon's claim on its data directory: daemon.pid held open
// under an exclusive lock for the daemon's lifetime, containing
// "PID:TOKEN". The token lets release tell its own file apart from one a
// later daemon wrote after this one lost the race.
type pidFile struct {
	path  string
	token string
	f     *os.File
}

func newPIDToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// claimPID locks daemon.pid and writes this process's pid and a fresh token.
func claimPID(dir paths.DataDir) (*pidFile, error) {
	path := dir.PID()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}

	p := &pidFile{path: path, token: newPIDToken(), f: f}
	content := strconv.Itoa(os.Getpid()) + ":" + p.token
	err = f.Truncate(0)
	if err == nil {
		_, err = f.WriteAt([]byte(content), 0)
	}
	if err != nil {
		p.unlock()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return p, nil
}

// release drops the lock and deletes the file if it still carries this
// claim's token.
func (p *pidFile) release() {
	data, err := io.ReadAll(io.NewSectionReader(p.f, 0, 64))
	p.unlock()
	if err != nil {
		return
	}
	if _, token, ok := parsePID(data); ok && token == p.token {
		os.Remove(p.path)
	}
}

func (p *pidFile) unlock() {
	_ = unlockFile(p.f)
	p.f.Close()
}

// parsePID splits "PID:TOKEN".
func parsePID(data []byte) (pid int, token string, ok bool) {
	before, after, found := bytes.Cut(bytes.TrimSpace(data), []byte(":"))
	if !found {
		return 0, "", false
	}
	pid, err := strconv.Atoi(string(before))
	if err != nil || pid <= 0 {
		return 0, "", false
	}
	return pid, string(after), true
}

// ///////////////////////////////////////////////
// Probing
// ///////////////////////////////////////////////

// probePID reports whether a live daemon holds the PID lock, and its pid
// when the file is readable. It leaves the file untouched. On Windows the
// lock also blocks reads, so pid is zero there.
func probePID(dir paths.DataDir) (alive bool, pid int) {
	f, err := os.Open(dir.PID())
	if err != nil {
		return false, 0
	}
	defer f.Close()

	if err := lockFile(f); err == nil {
		_ = unlockFile(f)
		return false, 0
	}
	if data, err := os.ReadFile(dir.PID()); err == nil {
		pid, _, _ = parsePID(data)
	}
	return true, pid
}

// checkStalePID is [probePID] for daemon startup: an unlocked PID file was
// left by a daemon that died and is removed.
func checkStalePID(dir paths.DataDir) (alive bool, pid int) {
	alive, pid = probePID(dir)
	if !alive {
		os.Remove(dir.PID())
	}
	return alive, pid
}
