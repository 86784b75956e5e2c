package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/firewatch-ai/firewatch/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(showCommand(settings), defaultsCommand())
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := conf.RenderYAML(settings)
			if err != nil {
				return err
			}
			if file := conf.ConfigFileUsed(); file != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", file)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func defaultsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Print the annotated default config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := conf.DefaultConfigYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
