// ABOUTME: clear command that deletes a conversation's history on a running gateway
// ABOUTME: Sends DELETE /api/conversations/{id} with the saved API token

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func runClear(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	baseFlag := fs.String("url", "", "gateway base URL (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: support-gateway clear [--url URL] CONVERSATION_ID")
	}
	id := strings.TrimSpace(fs.Arg(0))
	if id == "" {
		return fmt.Errorf("conversation id is required")
	}

	baseURL, err := resolveBaseURL(*baseFlag)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		baseURL+"/api/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if token := readToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("clearing conversation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		return responseError(resp.StatusCode, body)
	}

	fmt.Fprintf(out, "Cleared conversation %s\n", id)
	return nil
}
