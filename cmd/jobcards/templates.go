// cmd/jobcards/templates.go
package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fawad-mazhar/jobcards/internal/config"
	"github.com/fawad-mazhar/jobcards/internal/template"
	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect the job card templates of a configuration file",
}

var templatesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every configured template and report problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		failed := 0
		for _, t := range cfg.Templates {
			problems := template.Validate(t)
			if len(problems) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "ok       %s (%d tasks)\n", t.ID, len(t.Tasks))
				continue
			}
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "invalid  %s\n", t.ID)
			for _, p := range problems {
				fmt.Fprintf(cmd.OutOrStdout(), "         - %s\n", p)
			}
		}

		// Duplicate ids only show up on registration
		if failed == 0 {
			if _, err := loadTemplates(cfg.Templates); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d templates are invalid", failed, len(cfg.Templates))
		}
		return nil
	},
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.TabIndent)
		fmt.Fprintln(w, "ID\tNAME\tPRIORITY\tTASKS\tHOURS\t")
		for _, t := range cfg.Templates {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1f\t\n", t.ID, t.Name, t.DefaultPriority, len(t.Tasks), template.TotalHours(t))
		}
		return w.Flush()
	},
}

func init() {
	templatesCmd.AddCommand(templatesValidateCmd)
	templatesCmd.AddCommand(templatesListCmd)
	rootCmd.AddCommand(templatesCmd)
}
