// Package main はCLIツールのエントリポイント。
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const version = "1.0.0"

var (
	apiURL         string
	output         string
	timeout        time.Duration
	identityHeader string
)

// HTTPクライアント
var httpClient *http.Client

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "Token Issuer Service CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if apiURL == "" {
				apiURL = os.Getenv("TOKENCTL_API_URL")
			}
			httpClient = &http.Client{Timeout: timeout}
		},
		SilenceUsage: true,
	}

	// グローバルフラグ
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API endpoint URL (or set TOKENCTL_API_URL)")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&identityHeader, "identity-header", "X-Authenticated-User", "Header carrying the caller identity")

	// サブコマンド登録
	rootCmd.AddCommand(setupCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(pubkeyCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tokenctl version %s\n", version)
		},
	}
}

// setupCmd はキーストアの初期化コマンド。
func setupCmd() *cobra.Command {
	var hours uint8
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Initialize the keystore with a new signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodPost, "/v1/setup", map[string]any{"hours_until_expiration": hours}, nil, http.StatusCreated)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Keystore initialized (tokens expire after %d hour(s))\n", hours)
			}
			return nil
		},
	}
	cmd.Flags().Uint8Var(&hours, "hours", 24, "Token lifetime in hours (0-255)")
	return cmd
}

// issueCmd はトークンの発行コマンド。
func issueCmd() *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a token for an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity == "" {
				return fmt.Errorf("--identity is required")
			}
			body, err := doRequest(http.MethodPost, "/v1/tokens", nil, map[string]string{identityHeader: identity}, http.StatusCreated)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				JWT string `json:"jwt"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.JWT)
			return nil
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "Caller identity to bind into the token (required)")
	cmd.MarkFlagRequired("identity")
	return cmd
}

// validateCmd はトークンの検証コマンド。
func validateCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether a token is valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "-" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading token from stdin: %w", err)
				}
				token = strings.TrimSpace(string(b))
			}
			body, err := doRequest(http.MethodPost, "/v1/tokens/validate", map[string]string{"jwt": token}, nil, http.StatusOK)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				Valid bool `json:"valid"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			if result.Valid {
				fmt.Fprintln(cmd.OutOrStdout(), "valid")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "jwt", "", `Token to validate ("-" reads from stdin) (required)`)
	cmd.MarkFlagRequired("jwt")
	return cmd
}

// pubkeyCmd は公開鍵の取得コマンド。
func pubkeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pubkey",
		Short: "Print the token verification public key",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := doRequest(http.MethodGet, "/v1/pubkey", nil, nil, http.StatusOK)
			if err != nil {
				return err
			}
			if output == "json" {
				fmt.Fprintln(cmd.OutOrStdout(), string(body))
				return nil
			}
			var result struct {
				PublicKey string `json:"pubkey"`
			}
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("parsing response: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.PublicKey)
			return nil
		},
	}
}

// doRequest はAPIを呼び出し、want 以外のステータスはエラーとして返す。
func doRequest(method, path string, payload any, headers map[string]string, want int) ([]byte, error) {
	if apiURL == "" {
		return nil, fmt.Errorf("--api-url is required (or set TOKENCTL_API_URL)")
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, strings.TrimRight(apiURL, "/")+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Message != "" {
		return fmt.Errorf("Error: %s (%s)", errResp.Message, errResp.Code)
	}
	return fmt.Errorf("Error: server returned status %d", statusCode)
}
