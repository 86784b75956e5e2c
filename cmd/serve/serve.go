package serve

import (
	"github.com/spf13/cobra"

	"github.com/firewatch-ai/firewatch/internal/analysis"
	"github.com/firewatch-ai/firewatch/internal/conf"
)

// Command creates the serve command, which runs the HTTP API until interrupted.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings.WebServer.Enabled = true
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}
			c, err := analysis.Build(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer c.Close()
			return analysis.Serve(cmd.Context(), c)
		},
	}

	cmd.Flags().StringVar(&settings.WebServer.Host, "host", settings.WebServer.Host, "Listen address")
	cmd.Flags().StringVarP(&settings.WebServer.Port, "port", "p", settings.WebServer.Port, "Listen port")
	cmd.Flags().BoolVar(&settings.WebServer.Metrics, "metrics", settings.WebServer.Metrics, "Expose prometheus metrics on /metrics")
	return cmd
}
