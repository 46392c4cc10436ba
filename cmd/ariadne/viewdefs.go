package main

import (
	"github.com/spf13/cobra"
	"github.com/wehubfusion/Ariadne/internal/app"
)

var viewNames []string

var viewdefsCmd = &cobra.Command{
	Use:   "viewdefs <module>",
	Short: "Print the assembled view definitions of a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, logger, app.WithoutDatabase())
		if err != nil {
			return err
		}
		defer a.Close()

		defs, err := a.ViewDefs.GetViewDefs(cmd.Context(), args[0], viewNames)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), defs)
	},
}

func init() {
	viewdefsCmd.Flags().StringSliceVar(&viewNames, "view", nil, "views to assemble: recordView, listView, search (default all)")
}
