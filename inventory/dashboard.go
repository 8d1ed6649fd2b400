package inventory

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"invdash/errors"
	"invdash/query"
)

// ExportFileName 导出文件的默认名称
const ExportFileName = "sales_with_products.csv"

// DashboardKey 仪表盘的查询键，categoryID 为 0 表示全部分类
func DashboardKey(categoryID int) query.QueryKey {
	params := url.Values{}
	if categoryID > 0 {
		params.Set("category_id", strconv.Itoa(categoryID))
	}
	return query.NewQueryKey(NamespaceDashboard, 0, 0, params)
}

// Dashboard GET /dashboard?category_id
func (c *Client) Dashboard(ctx context.Context, categoryID int) (Dashboard, error) {
	var out Dashboard
	err := c.getJSON(ctx, "dashboard", DashboardKey(categoryID).FilterValues(), &out)
	return out, err
}

// FetchDashboard 经查询缓存读取仪表盘，写操作失效 dashboard 命名空间后重新请求
func FetchDashboard(ctx context.Context, qc *query.Client, c *Client, categoryID int) (Dashboard, error) {
	return query.Fetch[Dashboard](ctx, qc, DashboardKey(categoryID), func(ctx context.Context) (Dashboard, error) {
		return c.Dashboard(ctx, categoryID)
	})
}

// ExportSalesCSV GET /export-csv/sales_with_products，把内容写入 w
func (c *Client) ExportSalesCSV(ctx context.Context, w io.Writer) (int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "export-csv/sales_with_products", nil, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "text/csv")
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		err = errors.Normalize(err)
		if !errors.IsCanceled(err) {
			err = errors.WrapError(err, errors.ErrCodeNetwork, "download export")
		}
		return n, err
	}
	return n, nil
}
