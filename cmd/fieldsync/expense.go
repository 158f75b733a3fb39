package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fieldsync/core/internal/appapi"
	"github.com/fieldsync/core/internal/model"
)

var (
	expenseAmount   string
	expenseCategory string
	expenseJobOrder string
	expenseOverhead bool
	expenseDate     string
)

var expenseCmd = &cobra.Command{
	Use:   "expense",
	Short: "Manage locally stored expenses",
}

var expenseAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a new expense to the local store and enqueue it for sync",
	RunE:  runExpenseAdd,
}

var expenseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally stored expenses",
	RunE:  runExpenseList,
}

func init() {
	expenseAddCmd.Flags().StringVar(&expenseAmount, "amount-minor-units", "", "amount in minor currency units (required)")
	expenseAddCmd.Flags().StringVar(&expenseCategory, "category", "", "expense category (required)")
	expenseAddCmd.Flags().StringVar(&expenseJobOrder, "job-order-id", "", "linked job order id")
	expenseAddCmd.Flags().BoolVar(&expenseOverhead, "overhead", false, "mark as an overhead expense instead of job-linked")
	expenseAddCmd.Flags().StringVar(&expenseDate, "expense-date", "", "ISO-8601 expense date (required)")
	_ = expenseAddCmd.MarkFlagRequired("amount-minor-units")
	_ = expenseAddCmd.MarkFlagRequired("category")
	_ = expenseAddCmd.MarkFlagRequired("expense-date")

	expenseCmd.AddCommand(expenseAddCmd)
	expenseCmd.AddCommand(expenseListCmd)
}

func runExpenseAdd(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.shutdown()

	amount, err := strconv.ParseInt(expenseAmount, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid --amount-minor-units: %w", err)
	}

	form := appapi.ExpenseForm{
		AmountMinorUnits: amount,
		Category:         model.Category(expenseCategory),
		IsOverhead:       expenseOverhead,
		ExpenseDate:      expenseDate,
	}
	if expenseJobOrder != "" {
		form.JobOrderID = &expenseJobOrder
	}

	expense, err := r.app.SaveExpenseLocally(context.Background(), form, nil)
	if err != nil {
		return err
	}

	return printJSON(expense)
}

func runExpenseList(cmd *cobra.Command, args []string) error {
	r, err := buildRig()
	if err != nil {
		return err
	}
	defer r.shutdown()

	expenses, err := r.app.GetLocalExpenses(appapi.ExpenseQuery{})
	if err != nil {
		return err
	}
	return printJSON(expenses)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
