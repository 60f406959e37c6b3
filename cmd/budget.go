package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	dbt "globetrotter/db/db"
	"globetrotter/planner"
)

var inputPath string
var outputPath string

func budgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "budget",
		Short:   "compute a trip budget from a CSV file",
		Long:    `read activity and expense rows (kind,category,amount) from a CSV file and print the budget breakdown the server would compute for them`,
		Example: `globetrotter budget --input costs.csv --output budget.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputFile, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer inputFile.Close()

			csvContent, err := csv.NewReader(inputFile).ReadAll()
			if err != nil {
				return err
			}
			expenses, activities, err := ParseBudgetCSV(csvContent)
			if err != nil {
				return fmt.Errorf("failed to parse CSV: %w", err)
			}
			budget := planner.AggregateBudget(expenses, activities)

			var out io.Writer = cmd.OutOrStdout()
			if outputPath != "" {
				outputFile, err := os.Create(outputPath)
				if err != nil {
					return err
				}
				defer func(outputFile *os.File) {
					if err := outputFile.Close(); err != nil {
						log.Printf("Failed to close output file: %v", err)
					}
				}(outputFile)
				out = outputFile
			}
			return WriteBudgetCSV(out, budget)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "csv input file path (required)")
	if err := cmd.MarkFlagRequired("input"); err != nil {
		log.Fatal(err)
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "csv output file path, stdout when empty")

	return cmd
}

// ParseBudgetCSV reads rows of kind,category,amount after a header row. kind is
// "activity" or "expense"; activity rows may leave the amount empty, which
// counts as zero.
func ParseBudgetCSV(csvContent [][]string) ([]dbt.CategoryCost, decimal.Decimal, error) {
	if len(csvContent) == 0 {
		return nil, decimal.Zero, fmt.Errorf("CSV is empty")
	}

	var expenses []dbt.CategoryCost
	activities := decimal.Zero
	for i, row := range csvContent[1:] {
		line := i + 2
		if len(row) != 3 {
			return nil, decimal.Zero, fmt.Errorf("row %d: expected 3 columns, but got %d", line, len(row))
		}
		kind := strings.ToLower(strings.TrimSpace(row[0]))
		category := strings.ToLower(strings.TrimSpace(row[1]))
		rawAmount := strings.TrimSpace(row[2])

		amount := decimal.Zero
		if rawAmount != "" {
			var err error
			amount, err = decimal.NewFromString(rawAmount)
			if err != nil {
				return nil, decimal.Zero, fmt.Errorf("row %d: failed to convert amount '%s' to decimal: %w", line, rawAmount, err)
			}
		}
		if amount.IsNegative() {
			return nil, decimal.Zero, fmt.Errorf("row %d: amount must not be negative", line)
		}

		switch kind {
		case "activity":
			activities = activities.Add(amount)
		case "expense":
			if category == "" || category == dbt.ActivitiesCategory {
				return nil, decimal.Zero, fmt.Errorf("row %d: invalid expense category '%s'", line, row[1])
			}
			if rawAmount == "" {
				return nil, decimal.Zero, fmt.Errorf("row %d: expense without amount", line)
			}
			expenses = append(expenses, dbt.CategoryCost{Category: category, Cost: amount})
		default:
			return nil, decimal.Zero, fmt.Errorf("row %d: unknown kind '%s' (want activity or expense)", line, row[0])
		}
	}
	return expenses, activities, nil
}

// WriteBudgetCSV writes one category,cost row per breakdown entry and a final total row.
func WriteBudgetCSV(w io.Writer, b planner.Budget) error {
	cw := csv.NewWriter(w)
	records := [][]string{{"category", "cost"}}
	for _, c := range b.Breakdown {
		records = append(records, []string{c.Category, c.Cost.StringFixed(2)})
	}
	records = append(records, []string{"total", b.Total.StringFixed(2)})
	return cw.WriteAll(records)
}
