// ABOUTME: chat command that talks to a running gateway over its HTTP API
// ABOUTME: One-shot with --message, otherwise a line-by-line REPL on stdin

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/gateway"
)

// chatClient posts messages to /api/chat.
type chatClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// send posts one message. Every call carries a fresh request id so a
// retried send is never run twice by the gateway.
func (c *chatClient) send(ctx context.Context, conversationID, message string) (*gateway.ChatResponse, error) {
	payload, err := json.Marshal(gateway.ChatRequest{
		ConversationID: conversationID,
		Message:        message,
		RequestID:      uuid.New().String(),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp.StatusCode, body)
	}

	var out gateway.ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// responseError turns a gateway ErrorResponse body into an error.
func responseError(status int, body []byte) error {
	var e gateway.ErrorResponse
	if json.Unmarshal(body, &e) != nil || e.Error == "" {
		return fmt.Errorf("gateway returned %d: %s", status, strings.TrimSpace(string(body)))
	}
	if e.Retryable {
		return fmt.Errorf("%s (status %d, retryable, conversation %s)", e.Error, status, e.ConversationID)
	}
	return fmt.Errorf("%s (status %d)", e.Error, status)
}

// resolveBaseURL prefers an explicit --url over the configured gateway address.
func resolveBaseURL(flagURL string) (string, error) {
	if u := strings.TrimSuffix(flagURL, "/"); u != "" {
		return u, nil
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return gatewayURL(cfg), nil
}

func runChat(ctx context.Context, args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	message := fs.String("message", "", "send one message and exit")
	conversation := fs.String("conversation", "", "continue an existing conversation")
	url := fs.String("url", "", "gateway base URL (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	baseURL, err := resolveBaseURL(*url)
	if err != nil {
		return err
	}

	client := &chatClient{baseURL: baseURL, token: readToken(), http: http.DefaultClient}

	if *message != "" {
		resp, err := client.send(ctx, *conversation, *message)
		if err != nil {
			return err
		}
		printReply(out, resp)
		return nil
	}

	return chatREPL(ctx, client, *conversation, in, out)
}

// chatREPL keeps one conversation going until EOF.
func chatREPL(ctx context.Context, client *chatClient, conversationID string, in io.Reader, out io.Writer) error {
	green := color.New(color.FgGreen)
	color.New(color.FgCyan).Fprintln(out, "Support chat (Ctrl+D to exit)")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), 1024*1024)
	for {
		green.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp, err := client.send(ctx, conversationID, line)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		conversationID = resp.ConversationID
		printReply(out, resp)
	}
}

func printReply(out io.Writer, resp *gateway.ChatResponse) {
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "[%s] conversation %s, %d turn(s), %dms\n", resp.AgentName, resp.ConversationID, resp.Turns, resp.TimeTakenMS)
	if resp.LimitExceeded {
		color.New(color.FgYellow).Fprintln(out, "(routing limit reached)")
	}
	fmt.Fprintln(out, resp.Reply)
}

// printAgents renders the /api/agents response.
func printAgents(body []byte, out io.Writer) error {
	var agents []agent.Description
	if err := json.Unmarshal(body, &agents); err != nil {
		return fmt.Errorf("decoding agents: %w", err)
	}
	cyan := color.New(color.FgCyan)
	for _, a := range agents {
		cyan.Fprintf(out, "%-20s", a.Name)
		fmt.Fprintf(out, " %s\n", a.Description)
	}
	return nil
}
