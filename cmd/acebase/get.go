package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/acebase-go/acebase"
)

var getCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Read a node's value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := db.Ref(args[0])
		if err != nil {
			return err
		}
		snap, err := ref.Get(cmd.Context(), acebase.DefaultGetOptions())
		if err != nil {
			return err
		}
		return printJSON(map[string]any{
			"path":   ref.Path(),
			"exists": snap.Exists(),
			"value":  snap.Val(),
		})
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
