package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"slotledger/internal/core"
	"slotledger/internal/storage"
)

var flagAsOf string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := storage.RunMigrations(flagDB); err != nil {
			return err
		}
		version, dirty, err := storage.MigrationVersion(flagDB)
		if err != nil {
			return err
		}
		fmt.Printf("schema version %d (dirty=%t) at %s\n", version, dirty, flagDB)
		return nil
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List linked accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			accounts, err := env.store.ListAccounts(ctx)
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				fmt.Println("No accounts linked.")
				return nil
			}
			tw := newTable()
			fmt.Fprintln(tw, "ID\tBANK\tACCOUNT\tBALANCE\tAS OF\tVERSION")
			for _, a := range accounts {
				balance, asOf := "unknown", "-"
				if a.BalanceKnown {
					balance = a.Balance.String()
					asOf = a.BalanceAsOf.Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", a.ID, a.BankID, a.AccountNo, balance, asOf, a.Version)
			}
			return tw.Flush()
		})
	},
}

var linkCmd = &cobra.Command{
	Use:   "link BANK_ID ACCOUNT_NO",
	Short: "Link a bank account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			acc, err := env.engine.LinkAccount(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Linked account %d (%s %s)\n", acc.ID, acc.BankID, acc.AccountNo)
			return nil
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT_ID AMOUNT",
	Short: "Record a bank-reported balance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		amount, err := core.ParseAmount(args[1])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[1], err)
		}
		asOf := time.Now().UTC()
		if flagAsOf != "" {
			if asOf, err = time.Parse(time.RFC3339, flagAsOf); err != nil {
				return fmt.Errorf("--as-of: %w", err)
			}
		}
		return withLedger(cmd, func(ctx context.Context, env *ledgerEnv) error {
			rec, applied, err := env.engine.ApplyBalance(ctx, accountID, amount, asOf)
			if err != nil {
				return err
			}
			if !applied {
				fmt.Println("Ignored: a newer balance is already recorded.")
			}
			printReconciliation(rec)
			return nil
		})
	},
}

func init() {
	balanceCmd.Flags().StringVar(&flagAsOf, "as-of", "", "Balance timestamp (RFC 3339, default now)")
	rootCmd.AddCommand(migrateCmd, accountsCmd, linkCmd, balanceCmd)
}
