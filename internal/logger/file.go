package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ///////////////////////////////////////////////
// Rotating File
// ///////////////////////////////////////////////

// Options configures [New].
type Options struct {
	// Path is the log file. Rotated files are kept next to it.
	Path string
	// Level is the minimum severity written.
	Level slog.Level
	// MaxSizeMB is the size at which the file is rotated. Zero means 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files kept. Zero keeps 3.
	MaxBackups int
	// Mirror, when non-nil, receives a copy of every line. The daemon
	// passes stderr here when it runs in the foreground or on a terminal.
	Mirror io.Writer
}

// New creates a logger writing to a rotating file and, if opts.Mirror is
// set, to the mirror as well. Close the returned io.Closer on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("log path is empty")
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    orDefault(opts.MaxSizeMB, 10),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     28,
	}

	var w io.Writer = lj
	if opts.Mirror != nil {
		w = io.MultiWriter(lj, opts.Mirror)
	}
	return slog.New(NewHandler(w, opts.Level)), lj, nil
}

// orDefault returns v, or def when v is not positive.
func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Interactive reports whether f is a terminal, including Cygwin and MSYS
// pseudo-terminals on Windows.
func Interactive(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// StderrMirror returns os.Stderr when foreground is set or stderr is a
// terminal, and nil otherwise.
func StderrMirror(foreground bool) io.Writer {
	if foreground || Interactive(os.Stderr) {
		return os.Stderr
	}
	return nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(NewHandler(io.Discard, LevelFail+1))
}

// ///////////////////////////////////////////////
// ReadTail
// ///////////////////////////////////////////////

// tailChunk is how far ReadTail seeks back per read.
const tailChunk = 8 << 10

// ReadTail returns the last n lines of the file at path, without a trailing
// newline. It reads backwards from the end, so large logs cost only what
// is returned.
func ReadTail(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat log file: %w", err)
	}
	if n <= 0 {
		return "", nil
	}

	end := info.Size()
	var tail []byte
	for end > 0 {
		start := max(end-tailChunk, 0)
		chunk := make([]byte, end-start)
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading log file: %w", err)
		}
		tail = append(chunk, tail...)
		end = start
		// One more newline than wanted guarantees the first line is whole.
		if strings.Count(strings.TrimRight(string(tail), "\r\n"), "\n") >= n {
			break
		}
	}

	lines := strings.Split(strings.TrimRight(string(tail), "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	if len(lines) == 1 && lines[0] == "" {
		return "", nil
	}
	return strings.Join(lines, "\n"), nil
}
