package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var updateFlag bool

var setCmd = &cobra.Command{
	Use:   "set <path> <json-value>",
	Short: "Write a node's value (or merge with --update)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var value any
		if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
			return fmt.Errorf("parse value: %w", err)
		}
		ref, err := db.Ref(args[0])
		if err != nil {
			return err
		}
		if updateFlag {
			return ref.Update(cmd.Context(), value)
		}
		return ref.Set(cmd.Context(), value)
	},
}

func init() {
	setCmd.Flags().BoolVar(&updateFlag, "update", false, "Merge value into the existing object instead of replacing it")
	rootCmd.AddCommand(setCmd)
}
