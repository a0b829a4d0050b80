package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MelvinVerLia/SiLaporRT-sub001/internal/security"
)

var (
	tokenKeyPath  string
	tokenIssuer   string
	tokenAudience string
	tokenRole     string
	tokenTTL      time.Duration
)

// tokenCmd mints access tokens for local testing against the websocket.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a development access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := security.LoadRSAPrivateKeyFromPEM(tokenKeyPath)
		if err != nil {
			return err
		}
		tok, err := security.NewSigner(key, tokenIssuer, tokenAudience, tokenTTL).Sign(args[0], tokenRole, time.Now())
		if err != nil {
			return fmt.Errorf("sign: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&tokenKeyPath, "key", "", "RSA private key (PEM)")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "silapor-auth", "token issuer")
	tokenCmd.Flags().StringVar(&tokenAudience, "audience", "silapor", "token audience")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "citizen", "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	_ = tokenCmd.MarkFlagRequired("key")
}
