package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/app"
	"github.com/al3dwii/agenticBE/internal/artifacts"
)

var packsSchema string

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "List registered packs and agents, or print an agent's input schema.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logr := cliLogger(cfg)
		reg := app.BuildRegistry(cfg, artifacts.NewLocalStore(cfg.ArtifactsDir, cfg.PublicBaseURL, logr), logr)

		if packsSchema != "" {
			pack, agent, ok := strings.Cut(strings.ReplaceAll(packsSchema, "/", "."), ".")
			if !ok {
				return fmt.Errorf("--schema wants pack.agent, got %q", packsSchema)
			}
			a, err := reg.Lookup(pack, agent)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(a.SchemaDocument()))
			return nil
		}

		list := reg.List()
		names := make([]string, 0, len(list))
		for p := range list {
			names = append(names, p)
		}
		sort.Strings(names)

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Pack", "Agent"})
		table.SetAutoMergeCells(true)
		table.SetRowLine(true)
		for _, p := range names {
			for _, a := range list[p] {
				table.Append([]string{p, a})
			}
		}
		table.Render()
		return nil
	},
}

func init() {
	packsCmd.Flags().StringVar(&packsSchema, "schema", "", "print the input schema of pack.agent")
	rootCmd.AddCommand(packsCmd)
}
