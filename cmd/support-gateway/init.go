// ABOUTME: init command that writes a starter gateway config
// ABOUTME: Generates a random JWT secret and points the database at the XDG data dir

package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
)

const starterConfig = `# support-gateway configuration
# Generated by support-gateway init

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

model:
  provider: %s
  api_key: "${%s}"

routing:
  max_turns: 3
  cycle_timeout: "60s"

auth:
  jwt_secret: "%s"

logging:
  level: "info"
  format: "text"
`

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	provider := fs.String("provider", "openai", "model provider (openai or anthropic)")
	force := fs.Bool("force", false, "overwrite an existing config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	keyEnv, ok := map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}[*provider]
	if !ok {
		return fmt.Errorf("unknown provider %q", *provider)
	}

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	secret, err := randomSecret()
	if err != nil {
		return err
	}

	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "gateway.db")

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := fmt.Sprintf(starterConfig, dbPath, *provider, keyEnv, secret)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Database:       %s\n", dbPath)
	fmt.Println()
	color.New(color.FgYellow).Println("  Next:")
	fmt.Printf("    export %s=...\n", keyEnv)
	fmt.Println("    support-gateway serve")
	fmt.Println("    support-gateway token --subject me --save")
	fmt.Println()
	return nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}
