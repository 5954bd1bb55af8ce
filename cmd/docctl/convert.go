package main

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/app"
	"github.com/al3dwii/agenticBE/internal/artifacts"
	"github.com/al3dwii/agenticBE/internal/office"
	"github.com/al3dwii/agenticBE/internal/packs"
)

var (
	convertFile      string
	convertURL       string
	convertTitle     string
	convertMaxSlides int
	convertOut       string
)

var convertCmd = &cobra.Command{
	Use:   "convert <agent>",
	Short: "Run an office agent locally and write artifacts to --out.",
	Example: `  docctl convert word_to_pptx --file brief.docx --title "Q3 plan"
  docctl convert pptx_to_pdf --url https://example.com/deck.pptx --out ./out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logr := cliLogger(cfg)

		out, err := filepath.Abs(convertOut)
		if err != nil {
			return err
		}
		store := artifacts.NewLocalStore(out, "file://"+filepath.ToSlash(out), logr)
		reg := app.BuildRegistry(cfg, store, logr)

		agent, err := reg.Lookup(office.PackName, args[0])
		if err != nil {
			return err
		}

		inputs := map[string]any{}
		switch {
		case convertURL != "":
			inputs["file_url"] = convertURL
		case convertFile != "":
			abs, err := filepath.Abs(convertFile)
			if err != nil {
				return err
			}
			inputs["file_path"] = abs
		default:
			return errors.New("one of --file or --url is required")
		}
		if convertTitle != "" {
			inputs["title"] = convertTitle
		}
		if convertMaxSlides > 0 {
			inputs["max_slides"] = convertMaxSlides
		}
		if err := agent.Validate(inputs); err != nil {
			return err
		}

		result, err := agent.Run(cmd.Context(), packs.Context{TenantID: "local", Logger: logr}, inputs)
		if err != nil {
			return errors.Wrap(err, "Agent error")
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertFile, "file", "f", "", "local input document")
	convertCmd.Flags().StringVarP(&convertURL, "url", "u", "", "input document URL")
	convertCmd.Flags().StringVar(&convertTitle, "title", "", "deck title for outline conversions")
	convertCmd.Flags().IntVar(&convertMaxSlides, "max-slides", 0, "slide cap for outline conversions")
	convertCmd.Flags().StringVarP(&convertOut, "out", "o", ".", "directory for generated artifacts")
	convertCmd.ValidArgsFunction = func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return agentNames(), cobra.ShellCompDirectiveNoFileComp
	}
	convertCmd.Long = "Run an office agent locally. Agents: " + strings.Join(agentNames(), ", ")
	rootCmd.AddCommand(convertCmd)
}

func agentNames() []string {
	var names []string
	for _, a := range (&office.Pack{}).Agents() {
		names = append(names, a.Name)
	}
	return names
}
