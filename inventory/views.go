package inventory

import (
	"context"
	"strconv"

	"invdash/query"
	"invdash/table"
)

// 过滤字段名
const (
	FilterName     = "name"
	FilterCategory = "category"
)

const descriptionWidth = 40

// CategorySchema 分类列表的过滤字段
func CategorySchema() *query.FilterSchema {
	return query.NewFilterSchema(query.FilterField{Name: FilterName})
}

// ProductSchema 商品列表的过滤字段，category 按分类名称过滤
func ProductSchema() *query.FilterSchema {
	return query.NewFilterSchema(
		query.FilterField{Name: FilterName},
		query.FilterField{Name: FilterCategory},
	)
}

func CategoryColumns() []table.Column[Category] {
	return []table.Column[Category]{
		table.Text("id", "ID", func(c Category) string { return strconv.Itoa(c.ID) }),
		table.Text("name", "Name", func(c Category) string { return c.Name }),
		table.Text("created_at", "Created", func(c Category) string { return table.Date(c.CreatedAt.Time) }),
		table.Text("updated_at", "Updated", func(c Category) string { return table.Ago(c.UpdatedAt.Time) }),
	}
}

func ProductColumns() []table.Column[Product] {
	return []table.Column[Product]{
		table.Text("id", "ID", func(p Product) string { return strconv.Itoa(p.ID) }),
		table.Text("name", "Name", func(p Product) string { return p.Name }),
		table.Text("description", "Description", func(p Product) string {
			return table.Truncate(p.Description, descriptionWidth)
		}),
		table.Text("price", "Price", func(p Product) string { return table.USD(p.Price) }),
		table.Text("brand", "Brand", func(p Product) string { return p.Brand }),
		table.Text("category", "Category", func(p Product) string { return p.Category.Name }),
	}
}

// NewCategoriesView 分类列表视图
func NewCategoriesView(qc *query.Client, c *Client, pageSize int, onChange func(query.Snapshot[Category])) *query.TableView[Category] {
	return query.NewTableView(qc, query.ViewConfig[Category]{
		Namespace: NamespaceCategories,
		Schema:    CategorySchema(),
		PageSize:  pageSize,
		Columns:   CategoryColumns(),
		Load: func(ctx context.Context, key query.QueryKey) (query.Page[Category], error) {
			return c.ListCategories(ctx, key.Values())
		},
		OnChange: onChange,
	})
}

// NewProductsView 商品列表视图
func NewProductsView(qc *query.Client, c *Client, pageSize int, onChange func(query.Snapshot[Product])) *query.TableView[Product] {
	return query.NewTableView(qc, query.ViewConfig[Product]{
		Namespace: NamespaceProducts,
		Schema:    ProductSchema(),
		PageSize:  pageSize,
		Columns:   ProductColumns(),
		Load: func(ctx context.Context, key query.QueryKey) (query.Page[Product], error) {
			return c.ListProducts(ctx, key.Values())
		},
		OnChange: onChange,
	})
}

// CategoryOptions 全部分类（过滤器与商品表单的下拉选项），经查询缓存读取
func CategoryOptions(ctx context.Context, qc *query.Client, c *Client) ([]Category, error) {
	key := query.NewQueryKey(NamespaceCategoryOptions, 0, 0, nil)
	return query.Fetch[[]Category](ctx, qc, key, c.AllCategories)
}
