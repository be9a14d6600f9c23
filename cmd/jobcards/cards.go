// cmd/jobcards/cards.go
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"
	"github.com/fawad-mazhar/jobcards/internal/models"
	"github.com/spf13/cobra"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "List job cards of a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		server, _ := cmd.Flags().GetString("server")
		token, _ := cmd.Flags().GetString("token")

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, fmt.Sprintf("http://%s/api/v1/job-cards", server), nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)

		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to reach server: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server responded with %s", resp.Status)
		}

		var cards []models.JobCard
		if err := json.NewDecoder(resp.Body).Decode(&cards); err != nil {
			return fmt.Errorf("failed to decode job cards: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "ID\tWORK ORDER\tVEHICLE\tSTATUS\tPRIORITY\tCREATED\t")
		now := time.Now().UTC()
		for _, jc := range cards {
			created := fmt.Sprintf("%s ago", units.HumanDuration(now.Sub(jc.CreatedAt)))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n", jc.ID, jc.WorkOrderNumber, jc.VehicleID, jc.Status, jc.Priority, created)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cardsCmd)
	cardsCmd.Flags().StringP("server", "s", "localhost:8080", "Address of the jobcards server")
	cardsCmd.Flags().StringP("token", "t", os.Getenv("JOBCARDS_TOKEN"), "API token")
}
