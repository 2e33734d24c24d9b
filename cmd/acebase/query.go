package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acebase-go/acebase"
)

var (
	queryFilters []string
	querySort    string
	querySortAsc bool
	querySkip    int
	queryTake    int
	queryRefs    bool
)

var queryCmd = &cobra.Command{
	Use:   "query <path>",
	Short: "Filter/sort/page children of path (spec §4.9 queries)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := db.Query(args[0])
		if err != nil {
			return err
		}
		for _, f := range queryFilters {
			parts := strings.SplitN(f, ",", 3)
			if len(parts) != 3 {
				return fmt.Errorf("invalid --filter %q, want key,op,value", f)
			}
			var compare any
			if err := json.Unmarshal([]byte(parts[2]), &compare); err != nil {
				compare = parts[2]
			}
			q.Filter(parts[0], parts[1], compare)
		}
		if querySort != "" {
			q.Sort(querySort, querySortAsc)
		}
		if querySkip > 0 {
			q.Skip(querySkip)
		}
		if queryTake > 0 {
			q.Take(queryTake)
		}

		if queryRefs {
			refs, err := q.GetRefs(cmd.Context())
			if err != nil {
				return err
			}
			paths := make([]string, len(refs))
			for i, r := range refs {
				paths[i] = r.Path()
			}
			return printJSON(paths)
		}

		snaps, err := q.Get(cmd.Context(), acebase.DefaultGetOptions())
		if err != nil {
			return err
		}
		out := make([]map[string]any, len(snaps))
		for i, s := range snaps {
			out[i] = map[string]any{"path": s.Ref().Path(), "value": s.Val()}
		}
		return printJSON(out)
	},
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryFilters, "filter", nil, "key,op,value predicate; repeatable")
	queryCmd.Flags().StringVar(&querySort, "sort", "", "Sort key")
	queryCmd.Flags().BoolVar(&querySortAsc, "asc", true, "Sort ascending (with --sort)")
	queryCmd.Flags().IntVar(&querySkip, "skip", 0, "Matches to discard from the front")
	queryCmd.Flags().IntVar(&queryTake, "take", 0, "Max matches to return (0 = unbounded)")
	queryCmd.Flags().BoolVar(&queryRefs, "refs", false, "Print matching paths only, skip loading values")
	rootCmd.AddCommand(queryCmd)
}
