// Command recall serves and administers the multi-strategy memory search
// engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/logger"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
	port       int
	storage    string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "recall",
		Short:        "Multi-strategy memory search engine",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override log level")
	flags.IntVar(&opts.port, "port", 0, "Override server port")
	flags.StringVar(&opts.storage, "storage", "", "Override storage type (memory, badger, sqlite)")
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug mode")

	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(searchCmd(opts))
	cmd.AddCommand(strategiesCmd(opts))
	cmd.AddCommand(configCmd(opts))
	cmd.AddCommand(versionCmd())
	return cmd
}

// overrides maps the set flags to configuration keys.
func (o *rootOptions) overrides() map[string]interface{} {
	overrides := make(map[string]interface{})

	if o.logLevel != "" {
		overrides["log.level"] = o.logLevel
	}
	if o.port != 0 {
		overrides["server.port"] = o.port
	}
	if o.storage != "" {
		overrides["storage.type"] = o.storage
	}
	if o.debug {
		overrides["app.debug"] = true
	}

	return overrides
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath, o.overrides())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it globally.
func newLogger(cfg *config.Config) logger.Logger {
	logCfg := logger.ParseConfig(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output)
	if cfg.App.Debug {
		logCfg.Level = logger.DebugLevel
	}
	log := logger.New(logCfg)
	logger.SetGlobal(log)
	return log
}
