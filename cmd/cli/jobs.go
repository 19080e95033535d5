package main

import (
	"encoding/json"
	"fmt"
	"os"

	"foamcrm/internal/config"
	"foamcrm/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	jobsStatus     string
	jobsCustomerID uint
	jobsLimit      int
	jobsJSON       bool
)

// jobsCmd renders jobs straight from the database as a table.
var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs from the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}

		query := db.Model(&models.Job{}).Preload("Customer").Order("created_at DESC")
		if jobsStatus != "" {
			if !models.JobStatus(jobsStatus).IsValid() {
				return fmt.Errorf("unknown job status %q", jobsStatus)
			}
			query = query.Where("status = ?", jobsStatus)
		}
		if jobsCustomerID != 0 {
			query = query.Where("customer_id = ?", jobsCustomerID)
		}
		if jobsLimit > 0 {
			query = query.Limit(jobsLimit)
		}

		var jobs []models.Job
		if err := query.Find(&jobs).Error; err != nil {
			return fmt.Errorf("list jobs: %w", err)
		}

		if jobsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(jobs)
		}

		tw := table.NewWriter()
		tw.SetOutputMirror(os.Stdout)
		tw.AppendHeader(table.Row{"ID", "Estimate #", "Customer", "Status", "Quote", "Created"})
		for _, j := range jobs {
			customer := ""
			if j.Customer != nil {
				customer = j.Customer.Name
			}
			tw.AppendRow(table.Row{
				j.ID,
				j.EstimateNumber,
				customer,
				j.Status,
				fmt.Sprintf("%.2f", j.CostsData.FinalQuote),
				j.CreatedAt.Format("2006-01-02"),
			})
		}
		tw.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (estimate, sold, invoiced, paid)")
	jobsCmd.Flags().UintVar(&jobsCustomerID, "customer-id", 0, "filter by customer id")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "max rows to print (0 = no limit)")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "print raw JSON instead of a table")
}
