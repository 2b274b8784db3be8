package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/goclaw/recall/config"
	"github.com/goclaw/recall/pkg/strategyconfig"
)

func configCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage service and strategy configuration",
		Long: "View and manage service and strategy configuration.\n\n" +
			"Strategy changes are written to the configuration directory; a running\n" +
			"server picks them up on POST /api/v1/strategies/{name}/reload.",
	}
	cmd.AddCommand(configShowCmd(opts))
	cmd.AddCommand(configSetCmd(opts))
	cmd.AddCommand(configBackupCmd(opts))
	cmd.AddCommand(configBackupsCmd(opts))
	cmd.AddCommand(configRestoreCmd(opts))
	cmd.AddCommand(configVerifyCmd(opts))
	cmd.AddCommand(configExportCmd(opts))
	cmd.AddCommand(configImportCmd(opts))
	cmd.AddCommand(configAuditCmd(opts))
	return cmd
}

// withConfigs runs fn against the strategy configuration directory.
func withConfigs(opts *rootOptions, fn func(m *strategyconfig.Manager) error) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	cfg.Log.Level = "error"
	m, err := openConfigs(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}

func configShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [strategy]",
		Short: "Display the service configuration (secrets redacted) or a strategy configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				return withConfigs(opts, func(m *strategyconfig.Manager) error {
					sc, err := m.LoadOrDefault(args[0])
					if err != nil {
						return err
					}
					return printJSON(out, sc)
				})
			}

			loader := config.NewLoader()
			if _, err := loader.Load(opts.configPath, opts.overrides()); err != nil {
				return err
			}
			data, err := loader.Redacted()
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		},
	}
}

func configSetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set <strategy> <key=value>...",
		Short:   "Update fields of a strategy configuration",
		Example: "  recall config set substring priority=75 enabled=false\n  recall config set fulltext 'field_weights={\"title\":3}'",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				sc, err := m.Update(args[0], overrides)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sc)
			})
		},
	}
}

// parseAssignments turns key=value pairs into overrides. Values are read
// as JSON when they parse, so numbers, booleans and objects keep their
// type; anything else is a string.
func parseAssignments(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func configBackupCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backup <strategy>",
		Short: "Back up a strategy configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				if _, err := m.LoadOrDefault(args[0]); err != nil {
					return err
				}
				meta, err := m.Backup(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created backup %s (%s)\n", meta.ID, humanize.Bytes(uint64(meta.Size)))
				return nil
			})
		},
	}
}

func configBackupsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backups <strategy>",
		Short: "List the backups of a strategy configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				backups, err := m.ListBackups(args[0])
				if err != nil {
					return err
				}
				return printBackups(cmd.OutOrStdout(), backups)
			})
		},
	}
}

func printBackups(out io.Writer, backups []strategyconfig.BackupMetadata) error {
	if len(backups) == 0 {
		fmt.Fprintln(out, "No backups.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSIZE\tCHECKSUM")
	for _, b := range backups {
		sum := b.Checksum
		if len(sum) > 12 {
			sum = sum[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.ID, humanize.Time(b.CreatedAt), humanize.Bytes(uint64(b.Size)), sum)
	}
	return tw.Flush()
}

func configRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <strategy> <backup-id>",
		Short: "Restore a strategy configuration from a backup",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				sc, err := m.Restore(args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sc)
			})
		},
	}
}

func configVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <backup-id>",
		Short: "Check the size and checksum of a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				ok, err := m.ValidateIntegrity(args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("backup %s failed the integrity check", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup %s is intact.\n", args[0])
				return nil
			})
		},
	}
}

func configExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every persisted strategy configuration as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				configs, err := m.Export()
				if err != nil {
					return err
				}
				if output == "" || output == "-" {
					return printJSON(cmd.OutOrStdout(), configs)
				}
				data, err := json.MarshalIndent(configs, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, append(data, '\n'), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d configurations to %s\n", len(configs), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func configImportCmd(opts *rootOptions) *cobra.Command {
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import strategy configurations exported with 'config export'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var configs map[string]strategyconfig.StrategyConfig
			if err := json.Unmarshal(data, &configs); err != nil {
				return fmt.Errorf("failed to decode %s: %w", args[0], err)
			}
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				written, err := m.Import(configs, overwrite)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d configurations", len(written), len(configs))
				if len(written) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), ": %s", strings.Join(written, ", "))
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace existing configurations")
	return cmd
}

func configAuditCmd(opts *rootOptions) *cobra.Command {
	var (
		filter strategyconfig.AuditFilter
		action string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Show the configuration audit trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Action = strategyconfig.AuditAction(action)
			return withConfigs(opts, func(m *strategyconfig.Manager) error {
				entries := m.History(filter)
				out := cmd.OutOrStdout()
				if asJSON {
					if entries == nil {
						entries = []strategyconfig.AuditEntry{}
					}
					return printJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, "No audit entries.")
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "TIME\tACTION\tSTRATEGY\tOK\tMESSAGE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n",
						e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Strategy, e.Success, e.Message)
				}
				return tw.Flush()
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filter.Strategy, "strategy", "", "Only entries for this strategy")
	flags.StringVar(&action, "action", "", "Only entries with this action")
	flags.IntVarP(&filter.Limit, "limit", "n", 50, "Maximum number of entries")
	flags.BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
