// Package inventory 库存与销售管理 API 的客户端
//
// 包含实体定义、每个接口的调用、表单输入校验，以及分类、商品列表视图与写操作的装配。
package inventory

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"invdash/query"
)

// 缓存命名空间
const (
	NamespaceCategories      = "categories"
	NamespaceCategoryOptions = "category-options"
	NamespaceProducts        = "products"
	NamespaceDashboard       = "dashboard"
)

// Timestamp 服务端时间
//
// 服务端可能返回不带时区的 ISO 时间（按 UTC 处理）。
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp 依次尝试已知格式
func ParseTimestamp(s string) (Timestamp, error) {
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return Timestamp{Time: t}, nil
		}
		lastErr = err
	}
	return Timestamp{}, lastErr
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" || s == `""` {
		*t = Timestamp{}
		return nil
	}
	unquoted, err := strconv.Unquote(s)
	if err != nil {
		return err
	}
	parsed, err := ParseTimestamp(unquoted)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Category 商品分类
type Category struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	CreatedAt Timestamp `json:"created_at"`
	UpdatedAt Timestamp `json:"updated_at"`
}

// CategoryRef 商品内嵌的分类
type CategoryRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Product 商品
type Product struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Price       float64     `json:"price"`
	Brand       string      `json:"brand"`
	Category    CategoryRef `json:"category"`
}

// Sale 一笔销售
type Sale struct {
	ID         int       `json:"id"`
	ProductID  int       `json:"product_id"`
	Quantity   int       `json:"quantity"`
	TotalPrice float64   `json:"total_price"`
	Date       Timestamp `json:"date"`
	Product    *Product  `json:"product,omitempty"`
}

// MonthlySales 按月汇总
type MonthlySales struct {
	Month           string  `json:"month"`
	TotalSalesValue float64 `json:"monthly_total_sales_value"`
	TotalItemsSold  int     `json:"monthly_total_items_sold"`
	SalesDetails    []Sale  `json:"sales_details"`
}

// Dashboard 仪表盘指标
type Dashboard struct {
	RegisteredProducts int            `json:"registered_products"`
	TotalSalesValue    float64        `json:"total_sales_value"`
	TotalItemsSold     int            `json:"total_items_sold"`
	AverageSaleValue   float64        `json:"average_sale_value"`
	SalesByMonth       []MonthlySales `json:"sales_by_month"`
}

// HasSales 总销售额为 0 时界面显示无数据
func (d Dashboard) HasSales() bool { return d.TotalSalesValue > 0 }

// 列表响应信封
type categoryList struct {
	Categories []Category `json:"categories"`
	Total      int        `json:"total"`
}

type productList struct {
	Products      []Product `json:"products"`
	TotalProducts int       `json:"totalProducts"`
}

func (l categoryList) page() query.Page[Category] {
	return query.Page[Category]{Items: nonNil(l.Categories), Total: l.Total}
}

func (l productList) page() query.Page[Product] {
	return query.Page[Product]{Items: nonNil(l.Products), Total: l.TotalProducts}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ParseError CSV 解析阶段的行错误，Row 从 1 开始（不含表头）
type ParseError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// RowIndex 入库错误的位置：数据行序号（从 0 开始）或整批提交
type RowIndex struct {
	Row    int
	Commit bool
}

func (r *RowIndex) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return err
		}
		if unquoted == "commit" {
			*r = RowIndex{Commit: true}
			return nil
		}
		s = unquoted
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*r = RowIndex{Row: n}
	return nil
}

func (r RowIndex) MarshalJSON() ([]byte, error) {
	if r.Commit {
		return []byte(`"commit"`), nil
	}
	return []byte(strconv.Itoa(r.Row)), nil
}

func (r RowIndex) String() string {
	if r.Commit {
		return "commit"
	}
	return strconv.Itoa(r.Row)
}

// RowError 入库阶段的错误
type RowError struct {
	Index RowIndex `json:"index"`
	Error string   `json:"error"`
}

// ImportReport CSV 导入结果
//
// 部分行失败不影响其它行入库，结果以整体成功加失败明细的形式返回。
type ImportReport struct {
	Message     string       `json:"message"`
	ParseErrors []ParseError `json:"parse_errors"`
	DBErrors    []RowError   `json:"db_errors"`
}

// FailedLines 入库失败的行在源文件中的行号（序号 + 2：表头一行，序号从 0 开始）
func (r ImportReport) FailedLines() []int {
	var lines []int
	for _, e := range r.DBErrors {
		if !e.Index.Commit {
			lines = append(lines, e.Index.Row+2)
		}
	}
	return lines
}

// CommitFailed 整批提交失败，没有任何行入库
func (r ImportReport) CommitFailed() bool {
	for _, e := range r.DBErrors {
		if e.Index.Commit {
			return true
		}
	}
	return false
}

// Partial 存在任意行级错误
func (r ImportReport) Partial() bool {
	return len(r.DBErrors) > 0 || len(r.ParseErrors) > 0
}

// FailedLinesWarning 形如 "Products from lines 5,8 were not imported."，无失败行时为空
func (r ImportReport) FailedLinesWarning() string {
	lines := r.FailedLines()
	if len(lines) == 0 {
		return ""
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return "Products from lines " + strings.Join(parts, ",") + " were not imported."
}
