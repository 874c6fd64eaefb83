package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2beens/gymsheets/internal/workouts"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func newMigrateOwnersCmd(a *app) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "migrate-owners",
		Short: "Assign every unowned sheet and history log to an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrated, err := a.service.MigrateOwnership(cmd.Context(), owner)
			if err != nil {
				return fmt.Errorf("migrate ownership: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d records now owned by %s\n", green("✅"), migrated, owner)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id receiving the records")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newLinkOrphansCmd(a *app) *cobra.Command {
	var owner, logID string
	cmd := &cobra.Command{
		Use:   "link-orphans",
		Short: "Link the ungrouped sheets of a program import to its history log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.service.LinkOrphans(cmd.Context(), owner, logID)
			if err != nil {
				return fmt.Errorf("link orphans: %w", err)
			}

			out := cmd.OutOrStdout()
			switch result.Outcome {
			case workouts.LinkOutcomeLinked:
				fmt.Fprintf(out, "%s linked %d sheets to group %s\n", green("✅"), result.Linked, result.GroupID)
			case workouts.LinkOutcomeAlreadyGrouped:
				fmt.Fprintf(out, "%s history log already grouped as %s\n", yellow("•"), result.GroupID)
			default:
				fmt.Fprintf(out, "%s nothing to link\n", yellow("•"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&logID, "log", "", "history log id")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("log")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var owner string
	var onlyValid bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the sheets and history logs of an owner",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sheets, err := a.service.ListSheets(cmd.Context(), owner, onlyValid)
			if err != nil {
				return fmt.Errorf("list sheets: %w", err)
			}
			logs, err := a.service.ListHistoryLogs(cmd.Context(), owner)
			if err != nil {
				return fmt.Errorf("list history logs: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%d)\n", cyan("Sheets"), len(sheets))
			for _, sheet := range sheets {
				marker := " "
				if sheet.IsActive {
					marker = green("*")
				}
				group := ""
				if sheet.GroupID != "" {
					group = " group=" + sheet.GroupID
				}
				fmt.Fprintf(out, " %s %s  %s  %d exercises%s\n",
					marker, sheet.ID, yellow(sheet.Title), len(sheet.Exercises), group)
			}

			fmt.Fprintf(out, "%s (%d)\n", cyan("History"), len(logs))
			for _, historyLog := range logs {
				fmt.Fprintf(out, "   %s  %s  %s  %s\n",
					historyLog.ID, historyLog.Date.Format("2006-01-02"), historyLog.Title, historyLog.PDFName)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().BoolVar(&onlyValid, "valid", false, "only sheets with exercises")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newActivateCmd(a *app) *cobra.Command {
	var owner, sheetID string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make one sheet the active one, or deactivate all with an empty --sheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.service.Activate(cmd.Context(), owner, sheetID); err != nil {
				return fmt.Errorf("activate: %w", err)
			}
			if sheetID == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s no active sheet for %s\n", green("✅"), owner)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s active sheet: %s\n", green("✅"), sheetID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&sheetID, "sheet", "", "sheet id, empty deactivates all")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var owner, file, pdfURL, pdfName string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Extract workouts from a text file and import them as one program",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.extractor == nil {
				return errNoExtractor
			}

			text, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read %s: %w", file, err)
			}

			drafts, err := a.extractor.Extract(cmd.Context(), string(text))
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d workouts extracted\n", cyan("•"), len(drafts))

			result, err := a.service.ImportBatch(cmd.Context(), owner, drafts, workouts.SourceDocument{
				URL:  pdfURL,
				Name: pdfName,
			})
			if result != nil {
				for _, sheet := range result.Sheets {
					fmt.Fprintf(out, "   %s %s\n", sheet.ID, yellow(sheet.Title))
				}
				if result.Skipped > 0 {
					fmt.Fprintf(out, "%s %d empty workouts skipped\n", yellow("•"), result.Skipped)
				}
			}
			if err != nil {
				fmt.Fprintf(out, "%s import failed: %s\n", red("✗"), strings.TrimSpace(err.Error()))
				return fmt.Errorf("import: %w", err)
			}

			fmt.Fprintf(out, "%s imported %d sheets as group %s\n", green("✅"), len(result.Sheets), result.GroupID)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id")
	cmd.Flags().StringVar(&file, "file", "", "text file with the workout plan")
	cmd.Flags().StringVar(&pdfURL, "pdf-url", "", "url of the source document")
	cmd.Flags().StringVar(&pdfName, "pdf-name", "", "name of the source document")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
