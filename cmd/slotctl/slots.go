package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"slotledger/internal/catalog"
	"slotledger/internal/core"
	"slotledger/internal/reconcile"
	"slotledger/internal/transfer"
)

var (
	flagAcknowledge bool
	flagFrom        string
	flagTo          string
)

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List slot catalog categories",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		cat, err := catalog.Load(flagCatalog)
		if err != nil {
			return err
		}
		tw := newTable()
		fmt.Fprintln(tw, "ID\tCODE\tLABEL\tSAVING")
		for _, c := range cat.All() {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", c.ID, c.Code, c.Label, c.Saving)
		}
		return tw.Flush()
	},
}

var slotsCmd = &cobra.Command{
	Use:   "slots ACCOUNT_ID",
	Short: "Show the reconciled slots of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			rec, err := env.query.ListSlots(ctx, accountID)
			if err != nil {
				return err
			}
			printReconciliation(rec)
			return nil
		})
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit ACCOUNT_ID CODE=BUDGET...",
	Short: "Install the initial slot set of an account",
	Example: `  slotctl commit 1 FOOD=420000 TRANSPORT=45000 SAVINGS=800000
  slotctl commit 1 1=420000 3=45000 "custom:Trip=35000"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		proposal := make([]transfer.SlotProposal, 0, len(args)-1)
		for _, arg := range args[1:] {
			p, err := parseProposal(arg)
			if err != nil {
				return err
			}
			proposal = append(proposal, p)
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			rec, err := env.engine.CommitSlots(ctx, accountID, proposal)
			if err != nil {
				return err
			}
			printReconciliation(rec)
			return nil
		})
	},
}

// parseProposal reads CODE=BUDGET, ID=BUDGET (catalog id) or
// custom:NAME=BUDGET.
func parseProposal(arg string) (transfer.SlotProposal, error) {
	name, amount, ok := strings.Cut(arg, "=")
	if !ok {
		return transfer.SlotProposal{}, fmt.Errorf("slot %q: expected CODE=BUDGET", arg)
	}
	budget, err := core.ParseAmount(amount)
	if err != nil {
		return transfer.SlotProposal{}, fmt.Errorf("slot %q: %w", arg, err)
	}
	if custom, isCustom := strings.CutPrefix(name, "custom:"); isCustom {
		return transfer.SlotProposal{CustomName: custom, InitialBudget: budget, IsCustom: true}, nil
	}
	if id, err := strconv.ParseInt(name, 10, 64); err == nil {
		return transfer.SlotProposal{CategoryID: id, InitialBudget: budget}, nil
	}
	return transfer.SlotProposal{CategoryCode: name, InitialBudget: budget}, nil
}

var reallocateCmd = &cobra.Command{
	Use:   "reallocate ACCOUNT_ID FROM_SLOT TO_SLOT AMOUNT",
	Short: "Move budget between two slots",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		from, err := parseSlotID(args[1])
		if err != nil {
			return err
		}
		to, err := parseSlotID(args[2])
		if err != nil {
			return err
		}
		delta, err := core.ParseAmount(args[3])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[3], err)
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			res, err := env.engine.ReallocateBudget(ctx, transfer.ReallocateRequest{
				AccountID:    accountID,
				From:         from,
				To:           to,
				Delta:        delta,
				Acknowledged: flagAcknowledge,
			})
			if err != nil {
				return err
			}
			if res.RequiresConfirmation {
				fmt.Println("Target is a saving slot or Uncategorized; rerun with --ack to confirm.")
				return nil
			}
			printReconciliation(res.Reconciliation)
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history ACCOUNT_ID SLOT_ID",
	Short: "Show budget changes of a slot, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		slotID, err := parseSlotID(args[1])
		if err != nil {
			return err
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			entries, err := env.query.History(ctx, accountID, slotID)
			if err != nil {
				return err
			}
			tw := newTable()
			fmt.Fprintln(tw, "WHEN\tREASON\tOLD\tNEW\tACK")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
					e.ChangedAt.Format(time.RFC3339), e.Reason, e.OldBudget, e.NewBudget, e.Acknowledged)
			}
			return tw.Flush()
		})
	},
}

var spendingCmd = &cobra.Command{
	Use:   "spending ACCOUNT_ID SLOT_ID",
	Short: "Show daily and cumulative spending of a slot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		slotID, err := parseSlotID(args[1])
		if err != nil {
			return err
		}
		to := time.Now().UTC()
		if flagTo != "" {
			if to, err = time.Parse(time.DateOnly, flagTo); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
		}
		from := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
		if flagFrom != "" {
			if from, err = time.Parse(time.DateOnly, flagFrom); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			series, err := env.query.DailySpending(ctx, accountID, slotID, from, to)
			if err != nil {
				return err
			}
			tw := newTable()
			fmt.Fprintln(tw, "DATE\tSPENT\tCUMULATIVE")
			for d := range series.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Date.Format(time.DateOnly), d.Spent, d.Cumulative)
			}
			return tw.Flush()
		})
	},
}

func printReconciliation(rec reconcile.Reconciliation) {
	fmt.Printf("Account %d  balance %s  version %d\n\n", rec.Account.ID, rec.Balance, rec.Account.Version)
	tw := newTable()
	fmt.Fprintln(tw, "ID\tSLOT\tBUDGET\tREMAINING\tFLAGS")
	for _, v := range rec.All() {
		var flags []string
		if v.IsSaving {
			flags = append(flags, "saving")
		}
		if v.OverBudget {
			flags = append(flags, "over-budget")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", v.ID, v.Label, v.Budget, v.Remaining, strings.Join(flags, ","))
	}
	tw.Flush()
}

func init() {
	reallocateCmd.Flags().BoolVar(&flagAcknowledge, "ack", false, "Confirm moves into saving slots or Uncategorized")
	spendingCmd.Flags().StringVar(&flagFrom, "from", "", "First day, YYYY-MM-DD (default first of the month)")
	spendingCmd.Flags().StringVar(&flagTo, "to", "", "Last day, YYYY-MM-DD (default today)")
	rootCmd.AddCommand(categoriesCmd, slotsCmd, commitCmd, reallocateCmd, historyCmd, spendingCmd)
}
