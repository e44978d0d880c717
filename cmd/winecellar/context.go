package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"winecellar/internal/config"
	"winecellar/internal/daemon"
	"winecellar/internal/logging"
	"winecellar/internal/notes"
	"winecellar/internal/notifications"
	"winecellar/internal/pipeline"
	"winecellar/internal/session"
)

const pinEnvVar = "WINECELLAR_PIN"

type commandContext struct {
	configFlag *string
	pinFlag    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	configPath string
}

func newCommandContext(configFlag, pinFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		pinFlag:    pinFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// logger writes to stderr so stdout stays parseable. Info-level chatter is
// suppressed unless the config asks for debug logs.
func (c *commandContext) logger() *slog.Logger {
	cfg := c.configValue()
	if cfg == nil {
		return logging.NewNop()
	}
	level := cfg.Logging.Level
	if strings.EqualFold(level, "info") {
		level = "warn"
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

func (c *commandContext) withStore(cmd *cobra.Command, fn func(*notes.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := notes.Open(cfg)
	if err != nil {
		return fmt.Errorf("open note store: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// withRunner builds a one-shot pipeline runner over store and waits for all
// scheduled work before returning.
func (c *commandContext) withRunner(cmd *cobra.Command, store *notes.Store, fn func(*pipeline.Runner) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger := c.logger()
	proc, err := pipeline.NewFromConfig(cfg, store, logger, nil)
	if err != nil {
		return err
	}
	notifier := notifications.NewService(cfg)
	runner := pipeline.NewRunner(proc, cfg.Sync.MaxConcurrent,
		pipeline.WithRunnerLogger(logger),
		pipeline.WithHook(daemon.NotifyHook(store, notifier,
			time.Duration(cfg.Notifications.RequestTimeout)*time.Second, logger)),
	)
	defer runner.Wait()
	return fn(runner)
}

// authenticate enforces the session PIN when the config requires one.
func (c *commandContext) authenticate(cmd *cobra.Command) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if !cfg.Session.RequirePIN {
		return nil
	}
	pin, err := c.readPIN(cmd, "PIN: ")
	if err != nil {
		return err
	}
	sess, err := session.NewGate(cfg.PINPath()).Authenticate(pin)
	if err != nil {
		if errors.Is(err, session.ErrInvalidPIN) {
			return errors.New("incorrect PIN")
		}
		return err
	}
	if sess.Enrolled {
		fmt.Fprintln(cmd.ErrOrStderr(), "PIN enrolled for this data directory")
	}
	return nil
}

func (c *commandContext) readPIN(cmd *cobra.Command, prompt string) (string, error) {
	if c.pinFlag != nil {
		if pin := strings.TrimSpace(*c.pinFlag); pin != "" {
			return pin, nil
		}
	}
	if pin := strings.TrimSpace(os.Getenv(pinEnvVar)); pin != "" {
		return pin, nil
	}
	return session.ReadPIN(os.Stdin, cmd.ErrOrStderr(), prompt)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
