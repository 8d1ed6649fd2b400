package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"invdash/errors"
	"invdash/inventory"
)

func newCategoriesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"category", "cat"},
		Short:   "List, create and rename categories",
	}

	var lf listFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "Show one page of categories",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, _ []string) error {
			view := inventory.NewCategoriesView(a.qc, a.api, a.cfg.Table.PageSize, nil)
			return showView(ctx, a, view, lf.url(inventory.NamespaceCategories, a.cfg.Table.PageSize))
		}),
	}
	addListFlags(list, &lf, inventory.FilterName)

	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a category",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, args []string) error {
			c, err := a.mutations.CreateCategory.Run(ctx, inventory.CategoryInput{Name: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "id: %d\n", c.ID)
			return nil
		}),
	}

	update := &cobra.Command{
		Use:   "update ID NAME",
		Short: "Rename a category",
		Args:  cobra.MinimumNArgs(2),
		RunE: a.run(func(ctx context.Context, _ *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.NewValidationError("invalid id", map[string]string{"id": "must be a number"})
			}
			_, err = a.mutations.UpdateCategory.Run(ctx, inventory.CategoryUpdate{ID: id, Name: strings.Join(args[1:], " ")})
			return err
		}),
	}

	cmd.AddCommand(list, create, update)
	return cmd
}
