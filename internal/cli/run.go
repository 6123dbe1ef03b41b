package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"AltPull/internal/di"
	"AltPull/internal/domain/models"
	"AltPull/pkg/util"
)

var (
	runSource string
	runSymbol string
	runStart  string
	runEnd    string
	runForce  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one ETL flow and print its result",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, end, err := parseWindowFlags(runStart, runEnd)
		if err != nil {
			return err
		}

		rt, cleanup, err := di.InitializeRuntime(getConfig())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := rt.Runner.Run(cmd.Context(), models.RunRequest{
			Source: runSource,
			Symbol: runSymbol,
			Start:  start,
			End:    end,
			Force:  runForce,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	runCmd.Flags().StringVar(&runSource, "source", "", "Logical source (e.g. news, onchain)")
	runCmd.Flags().StringVar(&runSymbol, "symbol", "", "Symbol to ingest")
	runCmd.Flags().StringVar(&runStart, "start", "", "Window start (RFC3339, date or unix time)")
	runCmd.Flags().StringVar(&runEnd, "end", "", "Window end (RFC3339, date or unix time)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Re-run even if the run key already completed")
	_ = runCmd.MarkFlagRequired("source")
	_ = runCmd.MarkFlagRequired("symbol")
}

func parseWindowFlags(rawStart, rawEnd string) (*time.Time, *time.Time, error) {
	start, ok := util.ParseTimePtr(rawStart)
	if !ok {
		return nil, nil, fmt.Errorf("invalid --start value %q", rawStart)
	}
	end, ok := util.ParseTimePtr(rawEnd)
	if !ok {
		return nil, nil, fmt.Errorf("invalid --end value %q", rawEnd)
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, fmt.Errorf("--end must not be before --start")
	}
	return start, end, nil
}
