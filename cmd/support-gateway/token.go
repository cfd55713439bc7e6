// ABOUTME: token command that mints API bearer tokens from the configured JWT secret
// ABOUTME: Also resolves the token used by the client commands

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/config"
)

// runToken mints a token for --subject. With --save it is also written to the
// token file that the chat and agents commands read.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "", "token subject (required)")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	scope := fs.String("scope", "", "space-separated scopes")
	save := fs.Bool("save", false, "write the token to the CLI token file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*subject) == "" {
		return errors.New("--subject is required")
	}
	if *ttl <= 0 {
		return errors.New("--ttl must be positive")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured; API auth is disabled")
	}

	token, err := mintToken(cfg.Auth.JWTSecret, *subject, *ttl, strings.Fields(*scope))
	if err != nil {
		return err
	}

	if *save {
		path := tokenPath()
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(token), 0600); err != nil {
			return fmt.Errorf("writing token file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "saved token to %s\n", path)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func mintToken(secret, subject string, ttl time.Duration, scopes []string) (string, error) {
	token, err := auth.NewJWTVerifier([]byte(secret)).Generate(strings.TrimSpace(subject), ttl, scopes...)
	if err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return token, nil
}

func tokenPath() string {
	return filepath.Join(getConfigDir(), "token")
}

// readToken returns the API token for client commands.
// Priority: SUPPORT_GATEWAY_TOKEN env var > token file > none
func readToken() string {
	if t := os.Getenv("SUPPORT_GATEWAY_TOKEN"); t != "" {
		return t
	}
	data, err := os.ReadFile(tokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
