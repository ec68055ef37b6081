package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/assetflow/internal/config"
)

func newConfigCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration assetflow would use, after merging defaults,
the user config (~/.config/assetflow/config.yaml), the project's
.assetflow.yaml and environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if p := config.GetProjectConfigPath(cfg.Root); p != "" {
				fmt.Fprintf(out, "# project config: %s\n", cfg.MaskPath(p))
			}
			fmt.Fprintf(out, "# user config: %s\n", config.GetUserConfigPath())

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encoding config: %w", err)
			}
			_, err = out.Write(data)
			return err
		},
	}
}
