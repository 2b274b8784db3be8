package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goclaw/recall/pkg/engine"
)

func strategiesCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "strategies [name]",
		Short: "List registered strategies or describe one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			cfg.Log.Level = "error"
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if len(args) == 1 {
				info, err := a.engine.Strategy(args[0])
				if err != nil {
					return err
				}
				return printJSON(out, info)
			}
			if asJSON {
				return printJSON(out, a.engine.Strategies())
			}
			return printStrategies(out, a.engine.Strategies())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printStrategies(out io.Writer, infos []engine.StrategyInfo) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tENABLED\tPRIORITY\tBREAKER\tCAPABILITIES")
	for _, info := range infos {
		enabled := fmt.Sprint(info.Enabled)
		if info.Invalid != "" {
			enabled = "invalid"
		}
		caps := make([]string, len(info.Capabilities))
		for i, c := range info.Capabilities {
			caps[i] = string(c)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", info.Name, enabled, info.Priority, info.Breaker.State, strings.Join(caps, ","))
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
