package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/preflight"
)

var skipChecks []string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the conversion toolchain is installed and usable.",
	Long: `Runs the same preflight checks as the API at startup: soffice, Ghostscript,
unoconv, installed fonts and a writable artifacts directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		checks := preflight.Default(cfg.SofficeBin, cfg.GhostscriptBin, cfg.ArtifactsDir)
		results := preflight.Run(cmd.Context(), cliLogger(cfg), checks, skipChecks...)
		preflight.PrintResults(cmd.OutOrStdout(), results)
		if preflight.ShouldFail(results) {
			return errors.Errorf("%d critical check(s) failed", len(results.Critical))
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringSliceVarP(&skipChecks, "skip", "s", []string{}, "checks to skip by name")
	rootCmd.AddCommand(doctorCmd)
}
