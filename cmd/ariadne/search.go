package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wehubfusion/Ariadne/pkg/search"
)

var searchController string

var searchCmd = &cobra.Command{
	Use:   "search [term...]",
	Short: "Print the frontend route for a global search",
	RunE: func(cmd *cobra.Command, args []string) error {
		nav := search.NavigateToSearch(strings.Join(args, " "), searchController)
		_, err := fmt.Fprintln(cmd.OutOrStdout(), nav.URL())
		return err
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchController, "controller", "", "search controller; UnifiedSearch selects the unified search route")
}
