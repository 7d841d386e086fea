package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/agentuity/querycache/cache"
	"github.com/agentuity/querycache/config"
	"github.com/agentuity/querycache/env"
	"github.com/agentuity/querycache/query"
	"github.com/agentuity/querycache/tui"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// parseValues turns key=value arguments into param values.
func parseValues(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, errors.Newf("expected key=value, got %q", arg)
		}
		values[k] = v
	}
	return values, nil
}

func newRenderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "render <query> [key=value...]",
		Short: "Print the cache key and SQL of a query without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			dir := env.FlagOrEnv(cmd, "queries-dir", config.EnvQueriesDir, config.Default().QueriesDir)
			p, err := query.NewRunner(nil, nil, dir).Prepare(args[0], values)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "-- key: %s\n", p.Key)
			if kind, err := p.Definition.Kind(); err == nil && kind != "" {
				fmt.Fprintf(out, "-- provider: %s\n", kind)
			}
			fmt.Fprintln(out, strings.TrimSpace(p.SQL))
			return nil
		},
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <query> [key=value...]",
		Short: "Run a query through the cache and print the entry as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseValues(args[1:])
			if err != nil {
				return err
			}
			if format, _ := cmd.Flags().GetString("format"); format != "json" && format != "table" {
				return errors.Newf("unknown format %q", format)
			}
			ctx := cmd.Context()
			log := stderrLogger(cmd)
			a, err := newApp(ctx, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ignore, _ := cmd.Flags().GetBool("ignore-only-from-cache")
			runner := query.NewRunner(a.builder, a.db, a.cfg.QueriesDir,
				query.WithLogger(log),
				query.WithDefaultKind(a.cfg.CacheProvider),
			)
			entry, err := runner.Run(ctx, args[0], values, ignore)
			if err != nil {
				if errors.Is(err, cache.ErrCacheMissOnlyFromCache) {
					return errors.WithHint(err, "rerun with --ignore-only-from-cache to compute it")
				}
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			if format == "table" {
				headers, rows := tableRows(entry.Value)
				return tui.Table(cmd.OutOrStdout(), headers, rows)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(entry)
		},
	}
	cmd.Flags().Bool("ignore-only-from-cache", false, "compute the result even if the query is cache only")
	cmd.Flags().String("format", "json", "output format (json, table)")
	return cmd
}

// tableRows flattens query rows into table cells. Columns are the union of
// the row keys in name order; missing and NULL values print as NULL.
func tableRows(data query.Rows) ([]string, [][]string) {
	seen := make(map[string]bool)
	var headers []string
	for _, row := range data {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Strings(headers)
	rows := make([][]string, 0, len(data))
	for _, row := range data {
		cells := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := row[h]; ok && v != nil {
				cells[i] = fmt.Sprint(v)
			} else {
				cells[i] = "NULL"
			}
		}
		rows = append(rows, cells)
	}
	return headers, rows
}
