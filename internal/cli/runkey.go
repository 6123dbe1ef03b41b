package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"AltPull/internal/domain/models"
	"AltPull/internal/usecase"
)

var (
	keySource string
	keySymbol string
	keyStart  string
	keyEnd    string
)

var runKeyCmd = &cobra.Command{
	Use:   "runkey",
	Short: "Print the deterministic run key for a source, symbol and window",
	// pure computation; no configuration needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseWindowFlags(keyStart, keyEnd)
		if err != nil {
			return err
		}
		key := usecase.BuildRunKey(models.RunKeyInputs{Source: keySource, Symbol: keySymbol, Start: start, End: end})
		_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

func init() {
	runKeyCmd.Flags().StringVar(&keySource, "source", "", "Logical source")
	runKeyCmd.Flags().StringVar(&keySymbol, "symbol", "", "Symbol")
	runKeyCmd.Flags().StringVar(&keyStart, "start", "", "Window start")
	runKeyCmd.Flags().StringVar(&keyEnd, "end", "", "Window end")
	_ = runKeyCmd.MarkFlagRequired("source")
	_ = runKeyCmd.MarkFlagRequired("symbol")
}
