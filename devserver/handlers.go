package devserver

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"invdash/errors"
	httpx "invdash/http"
	"invdash/inventory"
	"invdash/validation"
)

// 列表默认与上限
const (
	defaultLimit = 100
	maxLimit     = 1000
)

type categoriesResponse struct {
	Categories []inventory.Category `json:"categories"`
	Total      int                  `json:"total"`
}

type productsResponse struct {
	Products      []inventory.Product `json:"products"`
	TotalProducts int                 `json:"totalProducts"`
}

type categoryBody struct {
	Name string `json:"name" validate:"notblank,max=255"`
}

type productBody struct {
	Name        string `json:"name" validate:"notblank,max=255"`
	Description string `json:"description"`
	Price       string `json:"price" validate:"notblank"`
	CategoryID  int    `json:"category_id" validate:"gt=0"`
	Brand       string `json:"brand" validate:"max=100"`
}

type saleBody struct {
	ProductID int `json:"product_id" validate:"gt=0"`
	Quantity  int `json:"quantity" validate:"gt=0"`
}

type handlers struct {
	store *Store
}

func (h *handlers) register(s httpx.IHttpServer) {
	s.GET("/", h.root)
	s.GET("/categories", h.listCategories)
	s.POST("/categories", h.createCategory)
	s.GET("/categories/:id", h.getCategory)
	s.PATCH("/categories/:id", h.updateCategory)
	s.GET("/products", h.listProducts)
	s.POST("/products", h.createProduct)
	s.GET("/products/:id", h.getProduct)
	s.POST("/products/upload-csv", h.uploadCSV)
	s.GET("/sales", h.listSales)
	s.POST("/sales", h.createSale)
	s.GET("/dashboard", h.dashboard)
	s.GET("/export-csv/sales_with_products", h.exportSales)
}

func (h *handlers) root(ctx httpx.IHttpContext) error {
	return ctx.JSON(http.StatusOK, map[string]string{"message": "Welcome to the invdash API"})
}

// queryInt 读取整数查询参数；非法值记入 fields
func queryInt(ctx httpx.IHttpContext, name string, def int, fields map[string]string) int {
	raw := ctx.GetQuery(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		fields["query."+name] = "Input should be a valid integer"
		return def
	}
	if n < 0 {
		fields["query."+name] = "Input should be greater than or equal to 0"
		return def
	}
	return n
}

func listFilter(ctx httpx.IHttpContext) (ListFilter, error) {
	fields := map[string]string{}
	f := ListFilter{
		Skip:     queryInt(ctx, "skip", 0, fields),
		Limit:    queryInt(ctx, "limit", defaultLimit, fields),
		Name:     strings.TrimSpace(ctx.GetQuery("name")),
		Category: strings.TrimSpace(ctx.GetQuery("category")),
	}
	if len(fields) > 0 {
		return f, errors.NewValidationError("invalid query parameters", fields)
	}
	f.Limit = min(f.Limit, maxLimit)
	return f, nil
}

func pathID(ctx httpx.IHttpContext) (int, error) {
	id, err := strconv.Atoi(ctx.GetParam("id"))
	if err != nil {
		return 0, errors.NewValidationError("invalid path parameter",
			map[string]string{"path.id": "Input should be a valid integer"})
	}
	return id, nil
}

func bind(ctx httpx.IHttpContext, v any) error {
	if err := ctx.BindJSON(v); err != nil {
		return err
	}
	return validation.Struct(v)
}

func (h *handlers) listCategories(ctx httpx.IHttpContext) error {
	f, err := listFilter(ctx)
	if err != nil {
		return err
	}
	items, total, err := h.store.ListCategories(ctx.Context(), f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, categoriesResponse{Categories: items, Total: total})
}

func (h *handlers) createCategory(ctx httpx.IHttpContext) error {
	var body categoryBody
	if err := bind(ctx, &body); err != nil {
		return err
	}
	c, err := h.store.CreateCategory(ctx.Context(), strings.TrimSpace(body.Name))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (h *handlers) getCategory(ctx httpx.IHttpContext) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	c, err := h.store.GetCategory(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (h *handlers) updateCategory(ctx httpx.IHttpContext) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var body categoryBody
	if err := bind(ctx, &body); err != nil {
		return err
	}
	c, err := h.store.UpdateCategory(ctx.Context(), id, strings.TrimSpace(body.Name))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (h *handlers) listProducts(ctx httpx.IHttpContext) error {
	f, err := listFilter(ctx)
	if err != nil {
		return err
	}
	items, total, err := h.store.ListProducts(ctx.Context(), f)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, productsResponse{Products: items, TotalProducts: total})
}

func (h *handlers) createProduct(ctx httpx.IHttpContext) error {
	var body productBody
	if err := bind(ctx, &body); err != nil {
		return err
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(body.Price), 64)
	if err != nil || price < 0 {
		return errors.NewValidationError("invalid price", map[string]string{"body.price": "Input should be a valid number"})
	}
	p, err := h.store.CreateProduct(ctx.Context(), NewProduct{
		Name:        strings.TrimSpace(body.Name),
		Description: body.Description,
		Price:       price,
		CategoryID:  body.CategoryID,
		Brand:       body.Brand,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (h *handlers) getProduct(ctx httpx.IHttpContext) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	p, err := h.store.GetProduct(ctx.Context(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (h *handlers) uploadCSV(ctx httpx.IHttpContext) error {
	file, _, err := ctx.FormFile("file")
	if err != nil {
		return errors.NewValidationError("missing file", map[string]string{"body.file": "Field required"})
	}
	defer file.Close()

	products, parseErrs, err := ParseProductsCSV(file)
	if err != nil {
		return err
	}
	report := inventory.ImportReport{
		Message:     ImportMessage(0, 0),
		ParseErrors: parseErrs,
		DBErrors:    []inventory.RowError{},
	}
	if len(products) > 0 {
		created, dbErrs, err := h.store.ImportProducts(ctx.Context(), products)
		if err != nil {
			return err
		}
		report.Message = ImportMessage(len(products), created)
		report.DBErrors = dbErrs
	}
	return ctx.JSON(http.StatusOK, report)
}

func (h *handlers) listSales(ctx httpx.IHttpContext) error {
	f, err := listFilter(ctx)
	if err != nil {
		return err
	}
	sales := []inventory.Sale{}
	err = h.store.EachSale(ctx.Context(), 0, f.Skip, f.Limit, func(s inventory.Sale) error {
		sales = append(sales, s)
		return nil
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sales)
}

func (h *handlers) createSale(ctx httpx.IHttpContext) error {
	var body saleBody
	if err := bind(ctx, &body); err != nil {
		return err
	}
	sale, err := h.store.CreateSale(ctx.Context(), body.ProductID, body.Quantity, time.Time{})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sale)
}

func (h *handlers) dashboard(ctx httpx.IHttpContext) error {
	fields := map[string]string{}
	categoryID := queryInt(ctx, "category_id", 0, fields)
	if len(fields) > 0 {
		return errors.NewValidationError("invalid query parameters", fields)
	}
	d, err := h.store.Dashboard(ctx.Context(), categoryID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, d)
}

// exportSales 逐行写出，不在内存中拼接整个文件
func (h *handlers) exportSales(ctx httpx.IHttpContext) error {
	ctx.SetHeader("Content-Disposition", "attachment; filename="+inventory.ExportFileName)
	return ctx.Stream(http.StatusOK, "text/csv", func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(salesCSVHeader); err != nil {
			return err
		}
		err := h.store.EachSale(ctx.Context(), 0, 0, 0, func(s inventory.Sale) error {
			return cw.Write(salesCSVRecord(s))
		})
		cw.Flush()
		if err != nil {
			return err
		}
		return cw.Error()
	})
}
