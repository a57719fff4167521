package cli

import (
	"fmt"
	"time"

	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/spf13/cobra"
)

func newOrderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Inspect and advance orders",
	}

	cmd.AddCommand(newOrderStatusCmd())
	return cmd
}

func newOrderStatusCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "status <order-id> [new-status]",
		Short: "Show an order, or move it to a new status",
		Long: "Without a status, prints the order and its history. With one " +
			"(confirmed, processing, shipped, delivered, cancelled) the order is " +
			"advanced if its lifecycle allows it; cancelling returns stock.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg config.Config, db *store.DB) error {
				orders := store.NewOrderStore(db)
				var (
					o   *domain.Order
					err error
				)
				if len(args) == 2 {
					o, err = orders.UpdateStatus(cmd.Context(), args[0], domain.OrderStatus(args[1]), note)
				} else {
					o, err = orders.Get(cmd.Context(), args[0])
					if err == nil && o == nil {
						err = mcp.NotFound("order", args[0])
					}
				}
				if err != nil {
					return err
				}
				printOrder(cmd, o)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "note recorded with the status change")

	return cmd
}

func printOrder(cmd *cobra.Command, o *domain.Order) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Order:   %s (agent %s)\n", o.ID, o.AgentID)
	fmt.Fprintf(out, "Status:  %s\n", o.Status)
	fmt.Fprintf(out, "Total:   %s %s (%d line(s), %s shipping)\n",
		commerce.FormatCents(o.TotalCents), o.Currency, len(o.Lines), o.ShippingMethod)
	for _, h := range o.History {
		line := fmt.Sprintf("  %s  %s", h.At.Format(time.RFC3339), h.Status)
		if h.Note != "" {
			line += "  " + h.Note
		}
		fmt.Fprintln(out, line)
	}
}
