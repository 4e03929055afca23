package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultAdminURL = "http://localhost:9090"

var (
	adminURL   string
	adminToken string
)

// AddConnectionFlags registers the admin API location and credentials on the root command.
func AddConnectionFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&adminURL, "admin-url", envOr("AEGIS_ADMIN_URL", defaultAdminURL), "Admin API base URL")
	cmd.PersistentFlags().StringVar(&adminToken, "token", os.Getenv("ADMIN_TOKEN"), "Admin bearer token")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// apiError is a non-2xx admin API response
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("admin API returned %d", e.Status)
	}
	return fmt.Sprintf("admin API returned %d: %s: %s", e.Status, e.Kind, e.Message)
}

// adminClient calls the admin API
type adminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAdminClient() *adminClient {
	return &adminClient{
		baseURL: strings.TrimRight(adminURL, "/"),
		token:   adminToken,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// do sends a request and decodes the "data" member of the response envelope into out
func (c *adminClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call admin API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &apiError{Status: resp.StatusCode, Kind: e.Error, Message: e.Message}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
