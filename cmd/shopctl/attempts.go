package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/client"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/config"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/db"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/discovery"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/logging"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/models"
	"github.com/prudhivi99/Distributed-Systems/minishop-go/internal/purchase"
)

func attemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Inspect and settle purchase attempts",
	}
	cmd.AddCommand(listAttemptsCmd())
	cmd.AddCommand(reverseAttemptCmd())
	return cmd
}

// env holds what every attempts subcommand needs. Close releases it.
type env struct {
	cfg      *config.Config
	logger   *zap.Logger
	database *db.PostgresDB
	attempts *db.AttemptRepository
}

func open(ctx context.Context) (*env, error) {
	cfg, err := config.Load("sales-service")
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger("shopctl", cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	database, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:      cfg,
		logger:   logger,
		database: database,
		attempts: db.NewAttemptRepository(database),
	}, nil
}

func (e *env) Close() {
	e.database.Close()
	_ = e.logger.Sync()
}

func listAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List purchase attempts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, _ := cmd.Flags().GetString("status")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			attempts, err := e.attempts.ListByStatus(ctx, status, limit)
			if err != nil {
				return err
			}
			return printAttempts(cmd.OutOrStdout(), attempts)
		},
	}

	cmd.Flags().StringP("status", "s", models.AttemptCompensationFailed,
		"Attempt status (in_progress, committed, failed, compensation_failed)")
	cmd.Flags().IntP("limit", "n", 50, "Maximum attempts")

	return cmd
}

func printAttempts(out io.Writer, attempts []models.PurchaseAttempt) error {
	if len(attempts) == 0 {
		_, err := fmt.Fprintln(out, "No attempts.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tRUN\tCUSTOMER\tITEM\tQTY\tAMOUNT\tSTATUS\tUPDATED")
	for _, a := range attempts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%s\t%s\t%s\n",
			a.Key, a.Run, a.CustomerID, a.ItemID, a.Quantity,
			a.Amount.StringFixed(2), a.Status, a.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func reverseAttemptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverse [idempotency-key]",
		Short: "Release the stock and refund the debit of an unfinished attempt",
		Long: `Reverse settles an attempt left in_progress by a crashed sales service,
or one left in compensation_failed. The stock deduct and wallet debit of the
attempt's current run are reversed by key, then the attempt is marked failed
so the client may resubmit.

An in_progress attempt is refused until it has been idle for --older-than,
which defaults to twice the longest a purchase can run under the sales
service's purchase settings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			olderThan, _ := cmd.Flags().GetDuration("older-than")

			ctx := cmd.Context()
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if olderThan <= 0 {
				olderThan = purchase.StaleAfter(e.cfg.Purchase)
			}

			a, err := e.attempts.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if a == nil {
				return fmt.Errorf("no attempt with key %q", args[0])
			}

			resolver := discovery.NewResolver(nil, e.cfg.Services, e.logger)
			orchestrator := purchase.NewOrchestrator(purchase.Deps{
				Customers: client.NewCustomerClient(resolver, e.cfg.Purchase.CallTimeout),
				Inventory: client.NewInventoryClient(resolver, e.cfg.Purchase.CallTimeout),
				Attempts:  e.attempts,
			}, e.cfg.Purchase)

			if err := orchestrator.Reverse(logging.ContextWithLogger(ctx, e.logger), a, olderThan); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reversed %s (run %d, %s refunded).\n",
				a.Key, a.Run, a.Amount.StringFixed(2))
			return nil
		},
	}

	cmd.Flags().Duration("older-than", 0,
		"Minimum idle time of an in_progress attempt (0 derives it from purchase settings)")

	return cmd
}
