package daemon

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleParser accepts five-field cron expressions and @every/@hourly
// descriptors.
func ScheduleParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// ValidateSchedule reports whether expr is a usable resync schedule. An
// empty expr disables scheduled resyncs.
func ValidateSchedule(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if _, err := ScheduleParser().Parse(expr); err != nil {
		return fmt.Errorf("invalid resync schedule %q: %w", expr, err)
	}
	return nil
}

// NextRun returns the first activation of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	schedule, err := ScheduleParser().Parse(strings.TrimSpace(expr))
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from), nil
}

type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error("cron: "+msg, args...)
}
