package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"slotledger/internal/amqp"
	"slotledger/internal/core"
	"slotledger/internal/log"
)

var (
	flagAMQPURL   string
	flagExchange  string
	flagFeedQueue string
	flagSlot      int64
	flagTxType    string
)

// feedCmd publishes messages onto the banking feed queue, for replaying a
// bank export or exercising slotledger-feed by hand.
var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Publish banking feed messages over AMQP",
}

var feedBalanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT_ID AMOUNT",
	Short: "Publish a balance.updated message",
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
		client, err := feedClient()
		if err != nil {
			return err
		}
		defer client.Close()

		msg := amqp.BalanceUpdatedMessage{AccountID: int64(accountID), Balance: int64(amount), AsOf: time.Now().UTC()}
		if err := client.PublishBalanceUpdated(cmd.Context(), msg); err != nil {
			return err
		}
		fmt.Printf("Published balance %s for account %d\n", amount, accountID)
		return nil
	},
}

var feedTransactionCmd = &cobra.Command{
	Use:   "transaction ACCOUNT_ID TX_ID AMOUNT POST_BALANCE",
	Short: "Publish a transaction.posted message",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, err := parseAccountID(args[0])
		if err != nil {
			return err
		}
		amount, err := core.ParseAmount(args[2])
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[2], err)
		}
		postBalance, err := strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("post balance %q: %w", args[3], err)
		}
		if !core.TransactionType(flagTxType).Valid() {
			return fmt.Errorf("--type %q: %w", flagTxType, core.ErrInvalidTransactionType)
		}
		client, err := feedClient()
		if err != nil {
			return err
		}
		defer client.Close()

		msg := amqp.TransactionPostedMessage{
			ID:          args[1],
			AccountID:   int64(accountID),
			SlotID:      flagSlot,
			Type:        flagTxType,
			Amount:      int64(amount),
			PostBalance: postBalance,
			OccurredAt:  time.Now().UTC(),
		}
		if err := client.PublishTransactionPosted(cmd.Context(), msg); err != nil {
			return err
		}
		fmt.Printf("Published %s %s of %s for account %d\n", msg.Type, msg.ID, amount, accountID)
		return nil
	},
}

func feedClient() (*amqp.Client, error) {
	if flagAMQPURL == "" {
		return nil, fmt.Errorf("no broker configured: pass --amqp-url or set AMQP_URL")
	}
	return amqp.NewClient(amqp.Config{
		URL:       flagAMQPURL,
		Exchange:  flagExchange,
		FeedQueue: flagFeedQueue,
	}, log.Discard())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func init() {
	feedCmd.PersistentFlags().StringVar(&flagAMQPURL, "amqp-url", os.Getenv("AMQP_URL"), "AMQP broker URL")
	feedCmd.PersistentFlags().StringVar(&flagExchange, "exchange", envOr("AMQP_EXCHANGE", "slotledger"), "AMQP exchange")
	feedCmd.PersistentFlags().StringVar(&flagFeedQueue, "queue", envOr("AMQP_FEED_QUEUE", "bank_feed"), "Feed queue")
	feedTransactionCmd.Flags().Int64Var(&flagSlot, "slot", 0, "Slot to charge (default uncategorized)")
	feedTransactionCmd.Flags().StringVar(&flagTxType, "type", string(core.Withdrawal), "deposit, withdrawal, transfer-in or transfer-out")

	feedCmd.AddCommand(feedBalanceCmd, feedTransactionCmd)
	rootCmd.AddCommand(feedCmd)
}
