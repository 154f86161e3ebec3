package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

// statusCmd queries a running node's /api/v1/status and prints it as
// pretty JSON, authenticating with RON_ADMIN_TOKEN if set.
func statusCmd() *cobra.Command {
	var addr, token string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "query a node's admin status endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("RON_ADMIN_TOKEN")
			}
			req, err := http.NewRequest(http.MethodGet, addr+"/api/v1/status", nil)
			if err != nil {
				return err
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode >= 300 {
				return fmt.Errorf("ronetctl: status query failed: %s: %s", resp.Status, string(body))
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				fmt.Println(string(body))
				return nil
			}
			out, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://127.0.0.1:8080", "gateway HTTP base address (admin routes are mounted on the main listener)")
	cmd.Flags().StringVar(&token, "token", "", "admin bearer token (defaults to RON_ADMIN_TOKEN)")
	return cmd
}
