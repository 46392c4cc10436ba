package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/wehubfusion/Ariadne/internal/app"
	"github.com/wehubfusion/Ariadne/pkg/mappers"
	"github.com/wehubfusion/Ariadne/pkg/record"
)

var (
	mapModule    string
	mapDirection string
)

var mapCmd = &cobra.Command{
	Use:   "map [file]",
	Short: "Map a record's attributes between the internal and external representation",
	Long: `Reads a JSON object of record attributes from file, or stdin when no file
is given, runs the mappers registered for the module and prints the mapped record.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMap,
}

func init() {
	mapCmd.Flags().StringVarP(&mapModule, "module", "m", "", "record module (required)")
	mapCmd.Flags().StringVarP(&mapDirection, "direction", "d", string(mappers.ToExternal), "toInternal or toExternal")
	_ = mapCmd.MarkFlagRequired("module")
}

func runMap(cmd *cobra.Command, args []string) error {
	direction, err := mappers.ParseDirection(mapDirection)
	if err != nil {
		return err
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	var attributes map[string]interface{}
	if err := json.NewDecoder(in).Decode(&attributes); err != nil {
		return fmt.Errorf("failed to read record attributes: %w", err)
	}

	a, err := app.New(cmd.Context(), cfg, logger, app.WithoutDatabase())
	if err != nil {
		return err
	}
	defer a.Close()

	rec := record.New(mapModule, attributes)
	if err := a.Runner.Run(cmd.Context(), rec, direction); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}
