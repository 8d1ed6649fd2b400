package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"invdash/errors"
	"invdash/inventory"
	"invdash/table"
)

var monthColumns = []table.Column[inventory.MonthlySales]{
	table.Text("month", "Month", func(m inventory.MonthlySales) string { return m.Month }),
	table.Text("value", "Sales value", func(m inventory.MonthlySales) string { return table.USD(m.TotalSalesValue) }),
	table.Text("items", "Items sold", func(m inventory.MonthlySales) string { return table.Count(int64(m.TotalItemsSold)) }),
	table.Text("sales", "Sales", func(m inventory.MonthlySales) string { return strconv.Itoa(len(m.SalesDetails)) }),
}

func renderDashboard(w io.Writer, d inventory.Dashboard) {
	table.RenderKV(w, [][2]string{
		{"Registered products", table.Count(int64(d.RegisteredProducts))},
		{"Total sales value", table.USD(d.TotalSalesValue)},
		{"Items sold", table.Count(int64(d.TotalItemsSold))},
		{"Average sale value", table.USD(d.AverageSaleValue)},
	})
	if !d.HasSales() {
		fmt.Fprintln(w, "No sales data available")
		return
	}
	table.Render(w, monthColumns, d.SalesByMonth)
}

func newDashboardCmd(a *app) *cobra.Command {
	var (
		categoryID int
		category   string
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show sales KPIs and the monthly summary",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			if category != "" && categoryID == 0 {
				id, err := resolveCategory(ctx, a, category)
				if err != nil {
					return err
				}
				categoryID = id
			}
			d, err := inventory.FetchDashboard(ctx, a.qc, a.api, categoryID)
			if err != nil {
				return err
			}
			renderDashboard(a.out, d)
			return nil
		}),
	}
	cmd.Flags().IntVar(&categoryID, "category-id", 0, "only sales of this category")
	cmd.Flags().StringVar(&category, "category", "", "only sales of this category (by name)")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download all sales with product details as CSV",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			if out == "-" {
				_, err := inventory.ExportSales(ctx, a.api, a.out, a.notifier)
				return err
			}
			file, err := os.Create(out)
			if err != nil {
				return errors.WrapError(err, errors.ErrCodeInvalidInput, "create "+out)
			}
			n, err := inventory.ExportSales(ctx, a.api, file, a.notifier)
			if cerr := file.Close(); err == nil && cerr != nil {
				err = errors.WrapError(cerr, errors.ErrCodeInternal, "write "+out)
			}
			if err != nil {
				_ = os.Remove(out)
				return err
			}
			fmt.Fprintf(a.errOut, "%s: %s\n", out, table.Bytes(n))
			return nil
		}),
	}
	cmd.Flags().StringVarP(&out, "out", "o", inventory.ExportFileName, `output file, "-" for stdout`)
	return cmd
}
