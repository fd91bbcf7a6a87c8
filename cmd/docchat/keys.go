package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"docchat/internal/pkg/jwtutil"
)

var hashKeyCmd = &cobra.Command{
	Use:         "hash-key [api-key]",
	Short:       "Print the bcrypt hash of an API key",
	Long:        `The output goes in auth.api_key_hash so the plain key never sits in the config.`,
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{annotationStandalone: "true"},
	RunE:        runHashKey,
}

var tokenCmd = &cobra.Command{
	Use:         "token",
	Short:       "Mint a bearer token for the HTTP API",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{annotationStandalone: "true"},
	RunE:        runToken,
}

var (
	tokenClient string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVarP(&tokenClient, "client", "c", "cli", "Client name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (defaults to auth.jwt_expire_minute)")

	rootCmd.AddCommand(hashKeyCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runHashKey(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash api key failed: %w", err)
	}
	cmd.Println(string(hash))
	return nil
}

func runToken(cmd *cobra.Command, _ []string) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = time.Duration(cfg.Auth.JWTExpireMinute) * time.Minute
	}
	token, err := jwtutil.GenerateToken(cfg.Auth.JWTSecret, ttl, tokenClient)
	if err != nil {
		return err
	}
	cmd.Println(token)
	return nil
}
