package main

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove <path>",
	Short: "Delete a node (equivalent to set(null))",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := db.Ref(args[0])
		if err != nil {
			return err
		}
		return ref.Remove(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
