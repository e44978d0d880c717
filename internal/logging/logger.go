package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"winecellar/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level string
	// Format is "console" (default) or "json".
	Format string
	// OutputPaths accepts "stdout", "stderr" or file paths. Defaults to stdout.
	OutputPaths []string
	Development bool
	NoColor     bool
}

// New constructs a slog logger. Debug level or Development mode adds source
// locations.
func New(opts Options) (*slog.Logger, error) {
	level := ParseLevel(opts.Level)
	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stdout"}
	}
	out, tty, err := openOutputs(paths)
	if err != nil {
		return nil, err
	}
	addSource := opts.Development || level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newLineHandler(out, level, addSource, tty && !opts.NoColor)), nil
	case "json":
		return slog.New(newJSONHandler(out, level, addSource)), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig logs to stderr and, when a log directory is configured, to
// winecellar.log inside it.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{OutputPaths: []string{"stderr"}})
	}
	paths := []string{"stderr"}
	if cfg.Paths.LogDir != "" {
		paths = append(paths, filepath.Join(cfg.Paths.LogDir, "winecellar.log"))
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: paths,
	})
}

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(level string) slog.Level {
	var l slog.Level
	name := strings.ToLower(strings.TrimSpace(level))
	if name == "warning" {
		name = "warn"
	}
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// openOutputs resolves output targets. The boolean reports whether the single
// target is a terminal.
func openOutputs(paths []string) (io.Writer, bool, error) {
	seen := make(map[string]bool, len(paths))
	var writers []io.Writer
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		switch p {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, false, fmt.Errorf("ensure log directory: %w", err)
			}
			f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
			if err != nil {
				return nil, false, fmt.Errorf("open log file %s: %w", p, err)
			}
			writers = append(writers, f)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, isTerminal(os.Stdout), nil
	case 1:
		return writers[0], isTerminal(writers[0]), nil
	default:
		return io.MultiWriter(writers...), false, nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
