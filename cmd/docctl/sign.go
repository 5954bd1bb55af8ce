package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/al3dwii/agenticBE/internal/webhooks"
)

var (
	signSecret string
	signVerify string
)

var signCmd = &cobra.Command{
	Use:   "sign [file]",
	Short: "Print the canonical webhook body and its signature.",
	Long: `Reads a JSON payload from file (or stdin) and prints the body the service
would send together with the X-Agentic-Signature value. With --verify the given
signature is checked against the raw input instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return err
		}

		secret := signSecret
		if secret == "" {
			secret = os.Getenv("WEBHOOK_HMAC_SECRET")
		}
		if secret == "" {
			secret = "change-me"
		}

		if signVerify != "" {
			if !webhooks.Verify(secret, bytes.TrimRight(raw, "\r\n"), signVerify) {
				return errors.New("signature mismatch")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature ok")
			return nil
		}

		if !json.Valid(raw) {
			return errors.New("payload is not JSON")
		}
		body, err := webhooks.Canonical(json.RawMessage(raw))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		fmt.Fprintln(cmd.OutOrStdout(), webhooks.SignBody(secret, body))
		return nil
	},
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "HMAC secret (default $WEBHOOK_HMAC_SECRET)")
	signCmd.Flags().StringVar(&signVerify, "verify", "", "verify this signature against the raw input")
	rootCmd.AddCommand(signCmd)
}
