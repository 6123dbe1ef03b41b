package cli

import (
	"github.com/spf13/cobra"

	"AltPull/internal/di"
	"AltPull/internal/services/alignment"
	"AltPull/internal/usecase"
)

var (
	alignSources     []string
	alignFreq        string
	alignJoin        string
	alignAgg         string
	alignFill        string
	alignLimit       int
	alignStart       string
	alignEnd         string
	alignFromStorage bool
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align several sources onto one time grid and print the rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, err := usecase.ParseSourceSpecs(alignSources...)
		if err != nil {
			return err
		}
		opts, err := alignFlagOptions()
		if err != nil {
			return err
		}
		start, end, err := parseWindowFlags(alignStart, alignEnd)
		if err != nil {
			return err
		}

		rt, cleanup, err := di.InitializeRuntime(getConfig())
		if err != nil {
			return err
		}
		defer cleanup()

		align := rt.Aligner.Align
		if alignFromStorage {
			align = rt.Aligner.AlignFromStorage
		}
		frame, err := align(cmd.Context(), specs, start, end, opts)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), frame.Records())
	},
}

func alignFlagOptions() (alignment.AlignOptions, error) {
	if _, err := alignment.ParseFrequency(alignFreq); err != nil {
		return alignment.AlignOptions{}, err
	}
	join, err := alignment.ParseJoin(alignJoin)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	agg, err := alignment.ParseAggregation(alignAgg)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	fill, err := alignment.ParseFillMethod(alignFill)
	if err != nil {
		return alignment.AlignOptions{}, err
	}
	return alignment.AlignOptions{Frequency: alignFreq, Join: join, Aggregation: agg, Fill: fill, FillLimit: alignLimit}, nil
}

func init() {
	alignCmd.Flags().StringArrayVar(&alignSources, "source", nil, "Source spec source:SYMBOL (repeatable)")
	alignCmd.Flags().StringVar(&alignFreq, "freq", "1D", "Grid frequency (e.g. 1h, 1D, 1W)")
	alignCmd.Flags().StringVar(&alignJoin, "join", "outer", "Join mode: inner or outer")
	alignCmd.Flags().StringVar(&alignAgg, "agg", "", "Aggregation: sum, mean, first, last, min, max, count")
	alignCmd.Flags().StringVar(&alignFill, "fill", "none", "Fill method: none, ffill, bfill, nearest")
	alignCmd.Flags().IntVar(&alignLimit, "limit", 0, "Maximum consecutive gaps to fill (0 = unlimited)")
	alignCmd.Flags().StringVar(&alignStart, "start", "", "Window start")
	alignCmd.Flags().StringVar(&alignEnd, "end", "", "Window end")
	alignCmd.Flags().BoolVar(&alignFromStorage, "from-storage", false, "Read persisted partitions instead of calling providers")
	_ = alignCmd.MarkFlagRequired("source")
	_ = alignCmd.MarkFlagRequired("agg")
}
