package verify

import (
	"github.com/spf13/cobra"

	"github.com/firewatch-ai/firewatch/internal/analysis"
	"github.com/firewatch-ai/firewatch/internal/conf"
)

// Command creates the verify command, which checks the current FIRMS
// hotspots against satellite imagery and prints the batch as JSON.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify current thermal hotspots",
		Long: `Fetch the hotspots of the configured FIRMS area, keep the strong ones and
verify each against satellite imagery. Verified wildfires are published to the
enabled alert channels; the whole batch is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := analysis.Build(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer c.Close()
			return analysis.Verify(cmd.Context(), c, cmd.OutOrStdout())
		},
	}

	setupFlags(cmd, settings)
	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().Float64Var(&settings.Hotspots.MinConfidence, "min-confidence", settings.Hotspots.MinConfidence, "Drop hotspots below this thermal confidence")
	cmd.Flags().Float64Var(&settings.Hotspots.MinFRP, "min-frp", settings.Hotspots.MinFRP, "Drop hotspots below this fire radiative power (MW)")
	cmd.Flags().StringVar(&settings.Hotspots.MalformedPolicy, "malformed", settings.Hotspots.MalformedPolicy, "Malformed row policy: drop or fail")
	cmd.Flags().IntVar(&settings.FIRMS.Days, "days", settings.FIRMS.Days, "Days of FIRMS data to fetch (1-10)")
	cmd.Flags().IntVarP(&settings.Verifier.Workers, "workers", "w", settings.Verifier.Workers, "Hotspots verified in parallel")
}
