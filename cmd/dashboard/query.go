package main

import (
	"encoding/json"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch the current traffic status once and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newQueryClient()
		if err != nil {
			return err
		}
		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(status)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Fetch the toll history once and print it as JSON, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newQueryClient()
		if err != nil {
			return err
		}
		history, err := client.TollHistory(cmd.Context())
		if err != nil {
			return err
		}
		slices.Reverse(history)
		return printJSON(history)
	},
}

func newQueryClient() (*api.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.APIBaseURL, cfg.RequestTimeout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
