package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/goclaw/recall/pkg/engine"
	"github.com/goclaw/recall/pkg/search"
)

type searchOptions struct {
	strategy string
	limit    int
	offset   int
	filter   string
	template string
	params   map[string]string
	sort     string
	asJSON   bool
}

func searchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a query against the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			// Keep command output free of service logs.
			cfg.Log.Level = "error"
			a, err := newApp(cmd.Context(), cfg, newLogger(cfg))
			if err != nil {
				return err
			}
			defer a.Close()
			return runSearch(cmd.Context(), cmd.OutOrStdout(), a.engine, strings.Join(args, " "), so)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&so.strategy, "strategy", "s", "", "Run a single strategy")
	flags.IntVarP(&so.limit, "limit", "n", 0, "Maximum number of results")
	flags.IntVar(&so.offset, "offset", 0, "Results to skip")
	flags.StringVarP(&so.filter, "filter", "f", "", "Filter expression, e.g. \"importance >= 0.5\"")
	flags.StringVarP(&so.template, "template", "t", "", "Apply a named filter template")
	flags.StringToStringVar(&so.params, "param", nil, "Template arguments as name=value")
	flags.StringVar(&so.sort, "sort", "", "Sort as field[:asc|desc]")
	flags.BoolVar(&so.asJSON, "json", false, "Print results as JSON")
	return cmd
}

func runSearch(ctx context.Context, out io.Writer, eng *engine.Engine, text string, so *searchOptions) error {
	q := search.Query{
		Text:             text,
		Limit:            so.limit,
		Offset:           so.offset,
		FilterExpression: so.filter,
	}
	if so.template != "" {
		q.FilterTemplate = &search.TemplateRef{Name: so.template, Args: so.params}
	}
	if so.sort != "" {
		field, dir, _ := strings.Cut(so.sort, ":")
		q.Sort = &search.SortSpec{Field: field, Direction: search.SortDirection(dir)}
		if dir == "" {
			q.Sort.Direction = search.SortDesc
		}
	}

	var (
		results []search.Result
		err     error
	)
	if so.strategy != "" {
		results, err = eng.SearchWithStrategy(ctx, q, so.strategy)
	} else {
		results, err = eng.Search(ctx, q)
	}
	if err != nil {
		return err
	}

	if so.asJSON {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tID\tSTRATEGY\tCONTENT")
	for _, r := range results {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", r.Score, r.ID, r.Strategy, truncate(r.Content, 60))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
