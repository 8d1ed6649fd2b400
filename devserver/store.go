package devserver

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"invdash/errors"
	"invdash/inventory"
	core "invdash/storage/database"
	"invdash/storage/database/basic"
)

// 与上游接口一致的错误文案
const (
	msgCategoryExists   = "Category name already registered"
	msgCategoryNotFound = "Category not found"
	msgProductNotFound  = "Product not found"
)

// Store 分类、商品、销售的 SQL 访问
type Store struct {
	db  core.IDatabase
	now func() time.Time
}

func NewStore(db core.IDatabase) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// ListFilter 列表查询条件
type ListFilter struct {
	Skip     int
	Limit    int
	Name     string
	Category string
}

func (f ListFilter) apply(b *basic.SelectBuilder, nameCol string) *basic.SelectBuilder {
	if f.Name != "" {
		b.Where(nameCol+" LIKE '%' || ? || '%'", f.Name)
	}
	return b
}

func (s *Store) count(ctx context.Context, b *basic.SelectBuilder) (int, error) {
	q, args := b.Count()
	var n int
	if err := s.db.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, dbError(err, "count")
	}
	return n, nil
}

// ListCategories 按名称子串过滤并分页，返回当前页与过滤后的总数
func (s *Store) ListCategories(ctx context.Context, f ListFilter) ([]inventory.Category, int, error) {
	b := f.apply(basic.NewSelect().From("categories"), "name")
	total, err := s.count(ctx, b)
	if err != nil {
		return nil, 0, err
	}

	q, args := b.Select("id", "name", "created_at", "updated_at").
		OrderBy("id", false).Limit(f.Limit).Offset(f.Skip).Build()
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, dbError(err, "list categories")
	}
	defer rows.Close()

	out := []inventory.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, dbError(rows.Err(), "list categories")
}

func scanCategory(row core.IRow) (inventory.Category, error) {
	var (
		c                inventory.Category
		created, updated string
	)
	if err := row.Scan(&c.ID, &c.Name, &created, &updated); err != nil {
		return c, err
	}
	c.CreatedAt, _ = inventory.ParseTimestamp(created)
	c.UpdatedAt, _ = inventory.ParseTimestamp(updated)
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, id int) (inventory.Category, error) {
	c, err := scanCategory(s.db.QueryRow(ctx,
		"SELECT id, name, created_at, updated_at FROM categories WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return c, errors.FromStatus(http.StatusNotFound, msgCategoryNotFound)
	}
	return c, dbError(err, "get category")
}

func (s *Store) categoryNameTaken(ctx context.Context, name string, exceptID int) (bool, error) {
	var n int
	err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM categories WHERE name = ? AND id <> ?", name, exceptID).Scan(&n)
	return n > 0, dbError(err, "check category name")
}

// CreateCategory 名称重复时返回 400
func (s *Store) CreateCategory(ctx context.Context, name string) (inventory.Category, error) {
	taken, err := s.categoryNameTaken(ctx, name, 0)
	if err != nil {
		return inventory.Category{}, err
	}
	if taken {
		return inventory.Category{}, errors.FromStatus(http.StatusBadRequest, msgCategoryExists)
	}
	now := s.timestamp()
	res, err := s.db.Exec(ctx, "INSERT INTO categories (name, created_at, updated_at) VALUES (?, ?, ?)", name, now, now)
	if err != nil {
		return inventory.Category{}, dbError(err, "insert category")
	}
	id, _ := res.LastInsertId()
	return s.GetCategory(ctx, int(id))
}

// UpdateCategory 重命名；不存在返回 404，与其它分类重名返回 400
func (s *Store) UpdateCategory(ctx context.Context, id int, name string) (inventory.Category, error) {
	if _, err := s.GetCategory(ctx, id); err != nil {
		return inventory.Category{}, err
	}
	taken, err := s.categoryNameTaken(ctx, name, id)
	if err != nil {
		return inventory.Category{}, err
	}
	if taken {
		return inventory.Category{}, errors.FromStatus(http.StatusBadRequest, msgCategoryExists)
	}
	if _, err := s.db.Exec(ctx, "UPDATE categories SET name = ?, updated_at = ? WHERE id = ?", name, s.timestamp(), id); err != nil {
		return inventory.Category{}, dbError(err, "update category")
	}
	return s.GetCategory(ctx, id)
}

const productColumns = "p.id, p.name, p.description, p.price, p.brand, c.id, c.name"

func productSelect() *basic.SelectBuilder {
	return basic.NewSelect().From("products p").Join("JOIN categories c ON c.id = p.category_id")
}

func scanProduct(row core.IRow) (inventory.Product, error) {
	var (
		p           inventory.Product
		desc, brand sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &desc, &p.Price, &brand, &p.Category.ID, &p.Category.Name); err != nil {
		return p, err
	}
	p.Description = desc.String
	p.Brand = brand.String
	return p, nil
}

// ListProducts name 为子串过滤，Category 按分类名精确匹配
func (s *Store) ListProducts(ctx context.Context, f ListFilter) ([]inventory.Product, int, error) {
	b := f.apply(productSelect(), "p.name")
	if f.Category != "" {
		b.Where("c.name = ?", f.Category)
	}
	total, err := s.count(ctx, b)
	if err != nil {
		return nil, 0, err
	}

	q, args := b.Select(productColumns).OrderBy("p.id", false).Limit(f.Limit).Offset(f.Skip).Build()
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, dbError(err, "list products")
	}
	defer rows.Close()

	out := []inventory.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, dbError(err, "scan product")
		}
		out = append(out, p)
	}
	return out, total, dbError(rows.Err(), "list products")
}

func (s *Store) GetProduct(ctx context.Context, id int) (inventory.Product, error) {
	q, args := productSelect().Select(productColumns).Where("p.id = ?", id).Build()
	p, err := scanProduct(s.db.QueryRow(ctx, q, args...))
	if err == sql.ErrNoRows {
		return p, errors.FromStatus(http.StatusNotFound, msgProductNotFound)
	}
	return p, dbError(err, "get product")
}

// NewProduct 写入数据库前的商品
type NewProduct struct {
	Name        string
	Description string
	Price       float64
	CategoryID  int
	Brand       string
}

func categoryExists(ctx context.Context, db core.IDatabase, id int) (bool, error) {
	var n int
	err := db.QueryRow(ctx, "SELECT COUNT(*) FROM categories WHERE id = ?", id).Scan(&n)
	return n > 0, dbError(err, "check category")
}

func (s *Store) insertProduct(ctx context.Context, db core.IDatabase, p NewProduct) (int, error) {
	now := s.timestamp()
	res, err := db.Exec(ctx,
		`INSERT INTO products (name, description, price, category_id, brand, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, nullable(p.Description), roundCents(p.Price), p.CategoryID, nullable(p.Brand), now, now)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// CreateProduct 分类不存在返回 404
func (s *Store) CreateProduct(ctx context.Context, p NewProduct) (inventory.Product, error) {
	ok, err := categoryExists(ctx, s.db, p.CategoryID)
	if err != nil {
		return inventory.Product{}, err
	}
	if !ok {
		return inventory.Product{}, errors.FromStatus(http.StatusNotFound,
			fmt.Sprintf("Category with id %d not found", p.CategoryID))
	}
	id, err := s.insertProduct(ctx, s.db, p)
	if err != nil {
		return inventory.Product{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "Error creating product in database").
			WithContext("status", http.StatusBadRequest)
	}
	return s.GetProduct(ctx, id)
}

// ImportProducts 在一个事务里写入全部商品
//
// 分类不存在的行记入 db_errors（index 为 products 中的下标）并跳过；
// 提交失败时整批回滚，返回 0 与 index 为 commit 的错误。
func (s *Store) ImportProducts(ctx context.Context, products []NewProduct) (int, []inventory.RowError, error) {
	var (
		created int
		rowErrs = []inventory.RowError{}
	)
	err := core.WithTx(ctx, s.db, func(tx core.ITransaction) error {
		for i, p := range products {
			ok, err := categoryExists(ctx, tx, p.CategoryID)
			if err != nil {
				return err
			}
			if !ok {
				rowErrs = append(rowErrs, inventory.RowError{
					Index: inventory.RowIndex{Row: i},
					Error: fmt.Sprintf("Category ID %d not found", p.CategoryID),
				})
				continue
			}
			if _, err := s.insertProduct(ctx, tx, p); err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		if errors.IsCanceled(err) {
			return 0, nil, err
		}
		rowErrs = append(rowErrs, inventory.RowError{
			Index: inventory.RowIndex{Commit: true},
			Error: "Database commit error: " + err.Error(),
		})
		return 0, rowErrs, nil
	}
	return created, rowErrs, nil
}

// CreateSale 按商品单价计算总价；商品不存在返回 404
func (s *Store) CreateSale(ctx context.Context, productID, quantity int, at time.Time) (inventory.Sale, error) {
	p, err := s.GetProduct(ctx, productID)
	if errors.IsNotFound(err) {
		return inventory.Sale{}, errors.FromStatus(http.StatusNotFound, fmt.Sprintf("Product with id %d not found", productID))
	}
	if err != nil {
		return inventory.Sale{}, err
	}
	if at.IsZero() {
		at = s.now()
	}
	total := roundCents(p.Price * float64(quantity))
	res, err := s.db.Exec(ctx, "INSERT INTO sales (product_id, quantity, total_price, date) VALUES (?, ?, ?, ?)",
		productID, quantity, total, at.UTC().Format(timeLayout))
	if err != nil {
		return inventory.Sale{}, dbError(err, "insert sale")
	}
	id, _ := res.LastInsertId()
	date, _ := inventory.ParseTimestamp(at.UTC().Format(timeLayout))
	return inventory.Sale{ID: int(id), ProductID: productID, Quantity: quantity, TotalPrice: total, Date: date}, nil
}

func salesSelect(categoryID int) *basic.SelectBuilder {
	b := basic.NewSelect().
		Select("s.id", "s.product_id", "s.quantity", "s.total_price", "s.date", productColumns).
		From("sales s").
		Join("JOIN products p ON p.id = s.product_id").
		Join("JOIN categories c ON c.id = p.category_id").
		OrderBy("s.id", false)
	if categoryID > 0 {
		b.Where("p.category_id = ?", categoryID)
	}
	return b
}

// EachSale 逐行回调带商品与分类信息的销售，limit<=0 表示全部
func (s *Store) EachSale(ctx context.Context, categoryID, skip, limit int, fn func(inventory.Sale) error) error {
	q, args := salesSelect(categoryID).Limit(limit).Offset(skip).Build()
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return dbError(err, "list sales")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sale inventory.Sale
			date string
		)
		p, err := scanSaleRow(rows, &sale, &date)
		if err != nil {
			return dbError(err, "scan sale")
		}
		sale.Date, _ = inventory.ParseTimestamp(date)
		sale.Product = &p
		if err := fn(sale); err != nil {
			return err
		}
	}
	return dbError(rows.Err(), "list sales")
}

func scanSaleRow(row core.IRow, sale *inventory.Sale, date *string) (inventory.Product, error) {
	var (
		p           inventory.Product
		desc, brand sql.NullString
	)
	err := row.Scan(&sale.ID, &sale.ProductID, &sale.Quantity, &sale.TotalPrice, date,
		&p.ID, &p.Name, &desc, &p.Price, &brand, &p.Category.ID, &p.Category.Name)
	p.Description = desc.String
	p.Brand = brand.String
	return p, err
}

// dashboardDetailLimit 仪表盘按月明细最多取的销售条数
const dashboardDetailLimit = 1000

// Dashboard 汇总指标与按月分组的销售
//
// categoryID<=0 表示不过滤。月份以英文缩写表示并按自然月排序。
func (s *Store) Dashboard(ctx context.Context, categoryID int) (inventory.Dashboard, error) {
	var d inventory.Dashboard

	count := basic.NewSelect().From("products p")
	if categoryID > 0 {
		count.Where("p.category_id = ?", categoryID)
	}
	n, err := s.count(ctx, count)
	if err != nil {
		return d, err
	}
	d.RegisteredProducts = n

	totals := basic.NewSelect().
		Select("COALESCE(SUM(s.total_price), 0)", "COALESCE(SUM(s.quantity), 0)", "COALESCE(AVG(s.total_price), 0)").
		From("sales s").Join("JOIN products p ON p.id = s.product_id")
	if categoryID > 0 {
		totals.Where("p.category_id = ?", categoryID)
	}
	q, args := totals.Build()
	if err := s.db.QueryRow(ctx, q, args...).Scan(&d.TotalSalesValue, &d.TotalItemsSold, &d.AverageSaleValue); err != nil {
		return d, dbError(err, "sales totals")
	}
	d.TotalSalesValue = roundCents(d.TotalSalesValue)
	d.AverageSaleValue = roundCents(d.AverageSaleValue)

	months := map[time.Month]*inventory.MonthlySales{}
	err = s.EachSale(ctx, categoryID, 0, dashboardDetailLimit, func(sale inventory.Sale) error {
		m := sale.Date.Month()
		group, ok := months[m]
		if !ok {
			group = &inventory.MonthlySales{Month: m.String()[:3]}
			months[m] = group
		}
		group.TotalSalesValue += sale.TotalPrice
		group.TotalItemsSold += sale.Quantity
		group.SalesDetails = append(group.SalesDetails, sale)
		return nil
	})
	if err != nil {
		return d, err
	}

	keys := make([]time.Month, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	slices.Sort(keys)
	d.SalesByMonth = make([]inventory.MonthlySales, 0, len(keys))
	for _, m := range keys {
		group := months[m]
		group.TotalSalesValue = roundCents(group.TotalSalesValue)
		d.SalesByMonth = append(d.SalesByMonth, *group)
	}
	return d, nil
}

// Counts 各表行数，启动日志使用
func (s *Store) Counts(ctx context.Context) (categories, products, sales int, err error) {
	for table, dst := range map[string]*int{"categories": &categories, "products": &products, "sales": &sales} {
		if *dst, err = s.count(ctx, basic.NewSelect().From(table)); err != nil {
			return
		}
	}
	return
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatCents(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func dbError(err error, op string) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(errors.IError); ok {
		return err
	}
	if errors.IsCanceled(err) {
		return errors.Normalize(err)
	}
	return errors.WrapError(err, errors.ErrCodeDatabase, op)
}
