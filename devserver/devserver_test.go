package devserver

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invdash/config"
	"invdash/errors"
	"invdash/inventory"
	"invdash/logging"
	"invdash/server"
)

func testConfig(seed bool) config.DevServer {
	return config.DevServer{
		Addr:      "127.0.0.1:0",
		DSN:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Seed:      seed,
		SeedSales: 60,
	}
}

func newTestServer(t *testing.T, seed bool) (*Server, *inventory.Client) {
	t.Helper()
	s := New(testConfig(seed), logging.NewNoopLogger())
	require.NoError(t, s.LoadConfig())
	require.NoError(t, s.SetupDependencies(context.Background()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})

	c, err := inventory.NewClient(inventory.ClientOptions{BaseURL: ts.URL, Logger: logging.NewNoopLogger()})
	require.NoError(t, err)
	return s, c
}

func TestCategories(t *testing.T) {
	_, c := newTestServer(t, false)
	ctx := context.Background()

	books, err := c.CreateCategory(ctx, inventory.CategoryInput{Name: "Books"})
	require.NoError(t, err)
	assert.Positive(t, books.ID)
	assert.False(t, books.CreatedAt.IsZero())

	_, err = c.CreateCategory(ctx, inventory.CategoryInput{Name: "Books"})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrCodeInvalidInput))
	assert.Contains(t, err.Error(), "Category name already registered")

	for _, name := range []string{"Bookshelves", "Toys", "Garden"} {
		_, err := c.CreateCategory(ctx, inventory.CategoryInput{Name: name})
		require.NoError(t, err)
	}

	page, err := c.ListCategories(ctx, url.Values{"name": {"book"}, "skip": {"1"}, "limit": {"1"}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Bookshelves", page.Items[0].Name)

	all, err := c.AllCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	updated, err := c.UpdateCategory(ctx, inventory.CategoryUpdate{ID: books.ID, Name: "Novels"})
	require.NoError(t, err)
	assert.Equal(t, "Novels", updated.Name)

	_, err = c.UpdateCategory(ctx, inventory.CategoryUpdate{ID: 999, Name: "Nope"})
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Category not found")

	_, err = c.UpdateCategory(ctx, inventory.CategoryUpdate{ID: books.ID, Name: "Toys"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Category name already registered")
}

func TestProducts(t *testing.T) {
	_, c := newTestServer(t, false)
	ctx := context.Background()

	electronics, err := c.CreateCategory(ctx, inventory.CategoryInput{Name: "Electronics"})
	require.NoError(t, err)
	books, err := c.CreateCategory(ctx, inventory.CategoryInput{Name: "Books"})
	require.NoError(t, err)

	p, err := c.CreateProduct(ctx, inventory.ProductInput{
		Name: "Phone", Description: "Smart", Price: "$1,234.50", CategoryID: electronics.ID, Brand: "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, 1234.50, p.Price)
	assert.Equal(t, inventory.CategoryRef{ID: electronics.ID, Name: "Electronics"}, p.Category)

	_, err = c.CreateProduct(ctx, inventory.ProductInput{
		Name: "Novel", Description: "Paper", Price: "$10.00", CategoryID: 42, Brand: "Pub",
	})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "Category with id 42 not found")

	for i := range 3 {
		_, err := c.CreateProduct(ctx, inventory.ProductInput{
			Name: "Novel " + string(rune('A'+i)), Description: "Paper", Price: "$10.00", CategoryID: books.ID, Brand: "Pub",
		})
		require.NoError(t, err)
	}

	page, err := c.ListProducts(ctx, url.Values{"category": {"Books"}, "limit": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 2)

	page, err = c.ListProducts(ctx, url.Values{"name": {"pho"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "Phone", page.Items[0].Name)
}

func TestValidationErrors(t *testing.T) {
	s, c := newTestServer(t, false)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/categories", "application/json", strings.NewReader(`{"name":"  "}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	_, err = c.ListCategories(context.Background(), url.Values{"skip": {"x"}})
	require.Error(t, err)
	assert.Equal(t, map[string]string{"skip": "Input should be a valid integer"}, errors.FieldErrors(err))
}

func TestImportProductsCSV(t *testing.T) {
	_, c := newTestServer(t, false)
	ctx := context.Background()
	cat, err := c.CreateCategory(ctx, inventory.CategoryInput{Name: "Electronics"})
	require.NoError(t, err)

	body := strings.Join([]string{
		"id,name,description,price,category_id,brand",
		"1,Mouse,Wireless,29.90,1,Logi",
		"2,Keyboard,Mechanical,abc,1,Keychron",
		"3,Monitor,27 inch,329.00,99,Dell",
		"4,Hub,,45.5,1,",
		"5,Short,row",
	}, "\n")
	report, err := c.ImportProductsCSV(ctx, inventory.CSVFile{Name: "products.csv", Body: strings.NewReader(body)})
	require.NoError(t, err)

	assert.Equal(t, "CSV processing complete. Attempted to add 3 products. Successfully added 2.", report.Message)
	require.Len(t, report.ParseErrors, 2)
	assert.Equal(t, 2, report.ParseErrors[0].Row)
	assert.Equal(t, 5, report.ParseErrors[1].Row)
	require.Len(t, report.DBErrors, 1)
	assert.Equal(t, "Category ID 99 not found", report.DBErrors[0].Error)
	assert.Equal(t, []int{3}, report.FailedLines())

	page, err := c.ListProducts(ctx, url.Values{"category": {cat.Name}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	_, err = c.ImportProductsCSV(ctx, inventory.CSVFile{Name: "bad.csv", Body: strings.NewReader("id,name\n1,x\n")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid CSV format")

	empty, err := c.ImportProductsCSV(ctx, inventory.CSVFile{Body: strings.NewReader("id,name,description,price,category_id,brand\n")})
	require.NoError(t, err)
	assert.Equal(t, "CSV processing complete. No valid products found to add.", empty.Message)
}

func TestDashboardAndExport(t *testing.T) {
	s, c := newTestServer(t, true)
	ctx := context.Background()

	d, err := c.Dashboard(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 19, d.RegisteredProducts)
	assert.True(t, d.HasSales())

	var items, details int
	var value float64
	for i, m := range d.SalesByMonth {
		items += m.TotalItemsSold
		value += m.TotalSalesValue
		details += len(m.SalesDetails)
		if i > 0 {
			prev, _ := time.Parse("Jan", d.SalesByMonth[i-1].Month)
			cur, _ := time.Parse("Jan", m.Month)
			assert.True(t, prev.Before(cur), "months out of order")
		}
	}
	assert.Equal(t, d.TotalItemsSold, items)
	assert.Equal(t, 60, details)
	assert.InDelta(t, d.TotalSalesValue, value, 0.05)

	books, _, err := s.Store().ListCategories(ctx, ListFilter{Name: "Books", Limit: 1})
	require.NoError(t, err)
	filtered, err := c.Dashboard(ctx, books[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 4, filtered.RegisteredProducts)
	assert.LessOrEqual(t, filtered.TotalSalesValue, d.TotalSalesValue)

	var buf bytes.Buffer
	n, err := c.ExportSalesCSV(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, salesCSVHeader, records[0])
	assert.Len(t, records, 61)
}

func TestSeed_Idempotent(t *testing.T) {
	s, _ := newTestServer(t, true)
	require.NoError(t, s.Store().Seed(context.Background(), 10))
	cats, products, sales, err := s.Store().Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, cats)
	assert.Equal(t, 19, products)
	assert.Equal(t, 60, sales)
}

func TestServer_Engine(t *testing.T) {
	s := New(testConfig(false), logging.NewNoopLogger())
	e := server.NewEngine(s, server.WithoutSignals())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	select {
	case <-s.Ready():
	case err := <-done:
		t.Fatalf("engine exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + s.Addr() + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, server.StateStopped, e.State())
}

func TestLoadConfig_Invalid(t *testing.T) {
	s := New(config.DevServer{SeedSales: -1}, logging.NewNoopLogger())
	err := s.LoadConfig()
	require.Error(t, err)
	fields := errors.FieldErrors(err)
	assert.Contains(t, fields, config.KeyDevServerAddr)
	assert.Contains(t, fields, config.KeyDevServerDSN)
	assert.Contains(t, fields, config.KeyDevServerSalesSeed)
}
