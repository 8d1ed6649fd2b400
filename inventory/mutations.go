package inventory

import (
	"context"
	"io"
	"strconv"
	"strings"

	"invdash/errors"
	"invdash/logging"
	"invdash/notify"
	"invdash/query"
)

// 通知文案
const (
	MsgCategoryCreated     = "Category created successfully"
	MsgCategoryCreateError = "Error creating category"
	MsgCategoryUpdated     = "Category updated successfully"
	MsgCategoryUpdateError = "Error updating category"
	MsgProductCreated      = "Product created successfully!"
	MsgProductCreateError  = "Error creating product. Please try again."
	MsgProductsImported    = "Products imported successfully!"
	MsgProductsImportError = "Error importing products. Please try again."
	MsgExported            = "CSV exported successfully"
	MsgExportError         = "Failed to export CSV"
	MsgNothingImported     = "No products were imported."
)

// Mutations 所有写操作
//
// 成功后失效的命名空间：
//   - 创建分类：categories、category-options
//   - 修改分类：categories、category-options、products（商品内嵌分类名称）
//   - 创建、导入商品：products、dashboard
type Mutations struct {
	CreateCategory *query.Mutation[CategoryInput, Category]
	UpdateCategory *query.Mutation[CategoryUpdate, Category]
	CreateProduct  *query.Mutation[ProductInput, Product]
	ImportProducts *query.Mutation[CSVFile, ImportReport]
}

// NewMutations 装配写操作
func NewMutations(qc *query.Client, c *Client, n notify.Notifier) *Mutations {
	logger := logging.ComponentLogger("inventory.mutation")
	return &Mutations{
		CreateCategory: query.NewMutation(qc, c.CreateCategory, query.MutationOptions[CategoryInput, Category]{
			Name:           "create-category",
			Invalidates:    []string{NamespaceCategories, NamespaceCategoryOptions},
			Validate:       CategoryInput.Validate,
			SuccessMessage: MsgCategoryCreated,
			ErrorMessage:   MsgCategoryCreateError,
			Notifier:       n,
			Logger:         logger,
		}),
		UpdateCategory: query.NewMutation(qc, c.UpdateCategory, query.MutationOptions[CategoryUpdate, Category]{
			Name:           "update-category",
			Invalidates:    []string{NamespaceCategories, NamespaceCategoryOptions, NamespaceProducts},
			Validate:       CategoryUpdate.Validate,
			SuccessMessage: MsgCategoryUpdated,
			ErrorMessage:   MsgCategoryUpdateError,
			Notifier:       n,
			Logger:         logger,
		}),
		CreateProduct: query.NewMutation(qc, c.CreateProduct, query.MutationOptions[ProductInput, Product]{
			Name:           "create-product",
			Invalidates:    []string{NamespaceProducts, NamespaceDashboard},
			Validate:       ProductInput.Validate,
			SuccessMessage: MsgProductCreated,
			ErrorMessage:   MsgProductCreateError,
			Notifier:       n,
			Logger:         logger,
		}),
		ImportProducts: query.NewMutation(qc, c.ImportProductsCSV, query.MutationOptions[CSVFile, ImportReport]{
			Name:           "import-products",
			Invalidates:    []string{NamespaceProducts, NamespaceDashboard},
			SuccessMessage: MsgProductsImported,
			ErrorMessage:   MsgProductsImportError,
			OnSuccess: func(ctx context.Context, report ImportReport) {
				warnImport(ctx, n, report)
			},
			Notifier: n,
			Logger:   logger,
		}),
	}
}

// warnImport 部分失败的导入额外发送警告，与整体失败区分
func warnImport(ctx context.Context, n notify.Notifier, report ImportReport) {
	if report.CommitFailed() {
		notify.Warning(ctx, n, MsgNothingImported)
		return
	}
	if msg := report.FailedLinesWarning(); msg != "" {
		notify.Warning(ctx, n, msg)
	}
	if len(report.ParseErrors) > 0 {
		lines := make([]string, len(report.ParseErrors))
		for i, e := range report.ParseErrors {
			// Row 不含表头，从 1 开始
			lines[i] = strconv.Itoa(e.Row + 1)
		}
		notify.Warning(ctx, n, "Lines "+strings.Join(lines, ",")+" could not be parsed.")
	}
}

// ExportSales 下载销售导出并发送结果通知
func ExportSales(ctx context.Context, c *Client, w io.Writer, n notify.Notifier) (int64, error) {
	written, err := c.ExportSalesCSV(ctx, w)
	if err != nil {
		if !errors.IsCanceled(err) {
			notify.Error(ctx, n, MsgExportError)
		}
		return written, err
	}
	notify.Success(ctx, n, MsgExported)
	return written, nil
}
