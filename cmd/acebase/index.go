package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexArray bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage secondary indexes (spec §4.8)",
}

var indexCreateCmd = &cobra.Command{
	Use:   "create <pattern> <key>",
	Short: "Build and register an index over existing data, then route future writes to it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if indexArray {
			return db.CreateArrayIndex(cmd.Context(), args[0], args[1])
		}
		return db.CreateIndex(cmd.Context(), args[0], args[1])
	},
}

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		indexes := db.Indexes()
		out := make([]map[string]any, len(indexes))
		for i, idx := range indexes {
			out[i] = map[string]any{
				"pattern": idx.PathPattern().String(),
				"key":     idx.Key(),
				"type":    idx.Type(),
			}
		}
		return printJSON(out)
	},
}

var indexDropCmd = &cobra.Command{
	Use:   "drop <pattern> <key>",
	Short: "Remove a registered index",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dropped, err := db.DropIndex(args[0], args[1])
		if err != nil {
			return err
		}
		if !dropped {
			return fmt.Errorf("no index registered on %s:%s", args[0], args[1])
		}
		return nil
	},
}

func init() {
	indexCreateCmd.Flags().BoolVar(&indexArray, "array", false, "Build an array-element index instead of a scalar index")
	indexCmd.AddCommand(indexCreateCmd, indexListCmd, indexDropCmd)
	rootCmd.AddCommand(indexCmd)
}
