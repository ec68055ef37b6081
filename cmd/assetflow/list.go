package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/assetflow/internal/tasks"
	"github.com/ShayCichocki/assetflow/pkg/models"
)

func newListCmd(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every task with its prerequisites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			defs := tasks.NewCatalog(cfg).Definitions()

			switch format {
			case "yaml":
				return writeTasksYAML(cmd.OutOrStdout(), defs)
			case "table", "":
				return writeTasksTable(cmd.OutOrStdout(), defs)
			default:
				return fmt.Errorf("unknown format %q (want table or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or yaml")
	return cmd
}

func writeTasksYAML(w io.Writer, defs []tasks.Definition) error {
	out := make([]models.Task, 0, len(defs))
	for _, d := range defs {
		out = append(out, models.Task{
			Name:        d.Name,
			Description: d.Description,
			DependsOn:   d.Deps,
			LongRunning: d.Service,
		})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding tasks: %w", err)
	}
	return enc.Close()
}

func writeTasksTable(w io.Writer, defs []tasks.Definition) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK\tDEPENDS ON\tDESCRIPTION")
	for _, d := range defs {
		name := d.Name
		switch {
		case d.Service:
			name = color.CyanString(name)
		case d.Custom:
			name = color.YellowString(name)
		}
		deps := strings.Join(d.Deps, ", ")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, deps, d.Description)
	}
	return tw.Flush()
}
