package cli

import (
	"fmt"
	"os"

	"github.com/soyeahso/mercora/internal/catalog"
	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/store"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the product catalog",
	}

	cmd.AddCommand(newCatalogImportCmd())
	cmd.AddCommand(newCatalogListCmd())
	return cmd
}

func newCatalogImportCmd() *cobra.Command {
	var opts catalog.Options

	cmd := &cobra.Command{
		Use:   "import <products.csv>",
		Short: "Import or update products from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.DefaultStock < 0 {
				return fmt.Errorf("--default-stock must not be negative")
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withStore(func(cfg config.Config, db *store.DB) error {
				res, err := catalog.Import(cmd.Context(), f, store.NewProductStore(db), opts, log)
				for _, skipped := range res.Skipped {
					fmt.Fprintf(cmd.ErrOrStderr(), "skipped %v\n", skipped)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d product(s), skipped %d\n", res.Imported, len(res.Skipped))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&opts.DefaultStock, "default-stock", 100, "stock for rows without a stock value")

	return cmd
}

func newCatalogListCmd() *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(cfg config.Config, db *store.DB) error {
				products := store.NewProductStore(db)
				list, err := products.List(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				total, err := products.Count(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, p := range list {
					sale := ""
					if p.OnSale && p.SalePriceCents > 0 {
						sale = " (sale)"
					}
					fmt.Fprintf(out, "  %-24s %-36s %10s%s stock=%d\n",
						p.ID, p.Name, commerce.FormatCents(p.EffectivePriceCents()), sale, p.Stock)
				}
				fmt.Fprintf(out, "%d of %d product(s)\n", len(list), total)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "products to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "products to skip")

	return cmd
}
