package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"invdash/errors"
	"invdash/inventory"
)

func newProductsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "products",
		Aliases: []string{"product"},
		Short:   "List, create and import products",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "Show one page of products",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			view := inventory.NewProductsView(a.qc, a.api, a.cfg.Table.PageSize, nil)
			return showView(ctx, a, view, lf.url(inventory.NamespaceProducts, a.cfg.Table.PageSize))
		}),
	}
	addListFlags(list, &lf, inventory.FilterName, inventory.FilterCategory)

	var in inventory.ProductInput
	var category string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a product",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			if category != "" && in.CategoryID == 0 {
				id, err := resolveCategory(ctx, a, category)
				if err != nil {
					return err
				}
				in.CategoryID = id
			}
			p, err := a.mutations.CreateProduct.Run(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "id: %d\n", p.ID)
			return nil
		}),
	}
	f := create.Flags()
	f.StringVar(&in.Name, "name", "", "product name")
	f.StringVar(&in.Description, "description", "", "product description")
	f.StringVar(&in.Price, "price", "", `price, masked input accepted ("$1,234.56")`)
	f.StringVar(&in.Brand, "brand", "", "brand")
	f.IntVar(&in.CategoryID, "category-id", 0, "category id")
	f.StringVar(&category, "category", "", "category name (alternative to --category-id)")

	importCmd := &cobra.Command{
		Use:   "import FILE.csv",
		Short: "Bulk import products from a CSV file (id,name,description,price,category_id,brand)",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return errors.WrapError(err, errors.ErrCodeInvalidInput, "open "+args[0])
			}
			defer file.Close()

			report, err := a.mutations.ImportProducts.Run(ctx, inventory.CSVFile{Name: filepath.Base(args[0]), Body: file})
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, report.Message)
			for _, pe := range report.ParseErrors {
				fmt.Fprintf(a.out, "  line %d: %s\n", pe.Row+1, pe.Error)
			}
			for _, de := range report.DBErrors {
				fmt.Fprintf(a.out, "  %s: %s\n", de.Index, de.Error)
			}
			return nil
		}),
	}

	cmd.AddCommand(list, create, importCmd)
	return cmd
}

// resolveCategory 按名称查找分类 id（来自分类选项缓存）
func resolveCategory(ctx context.Context, a *app, name string) (int, error) {
	options, err := inventory.CategoryOptions(ctx, a.qc, a.api)
	if err != nil {
		return 0, err
	}
	for _, c := range options {
		if c.Name == name {
			return c.ID, nil
		}
	}
	return 0, errors.NewError(errors.ErrCodeNotFound, "category not found: "+name)
}
