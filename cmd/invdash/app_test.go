package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invdash/config"
	"invdash/devserver"
	"invdash/errors"
	"invdash/logging"
)

// newAPI 启动带种子数据的内存开发服务
func newAPI(t *testing.T) string {
	t.Helper()
	s := devserver.New(config.DevServer{
		Addr:      "127.0.0.1:0",
		DSN:       "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		Seed:      true,
		SeedSales: 40,
	}, logging.NewNoopLogger())
	require.NoError(t, s.LoadConfig())
	require.NoError(t, s.SetupDependencies(context.Background()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
	})
	return ts.URL
}

type result struct {
	out, errOut string
	err         error
}

func execute(t *testing.T, api, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	root.SetArgs(append([]string{"--api", api, "--log-level", "error"}, args...))
	err := root.Execute()
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

func TestCategoriesCommands(t *testing.T) {
	api := newAPI(t)

	r := execute(t, api, "", "categories", "list", "--name", "book")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Books")
	assert.NotContains(t, r.out, "Electronics")
	assert.Contains(t, r.out, "1–1 of 1")
	assert.Contains(t, r.out, "view: /categories?name=book")

	r = execute(t, api, "", "categories", "create", "Board", "Games")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "id: 7")

	r = execute(t, api, "", "cat", "create", "Books")
	require.Error(t, r.err)
	assert.Contains(t, r.errOut, "error: Category name already registered")

	r = execute(t, api, "", "categories", "update", "x", "Novels")
	require.Error(t, r.err)
	assert.True(t, errors.IsValidation(r.err))
	assert.Contains(t, r.errOut, "invalid input:\n  id: must be a number")

	r = execute(t, api, "", "categories", "update", "7", "Tabletop")
	require.NoError(t, r.err, r.errOut)
	r = execute(t, api, "", "categories", "list", "--url", "/categories?name=table")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Tabletop")
}

func TestProductsCommands(t *testing.T) {
	api := newAPI(t)

	r := execute(t, api, "", "products", "list", "--category", "Books")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "1–4 of 4")

	r = execute(t, api, "", "products", "list", "--page", "2")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "11–19 of 19")
	assert.Contains(t, r.out, "view: /products?page=2")

	// 越界页码收敛到最后一页
	r = execute(t, api, "", "products", "list", "--page", "9", "--size", "10")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "11–19 of 19")

	r = execute(t, api, "", "products", "create",
		"--name", "Chess Set", "--description", "Wooden", "--price", "$1,299.50",
		"--brand", "Acme", "--category", "Toys")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "id: 20")

	r = execute(t, api, "", "products", "list", "--name", "Chess")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "$1,299.50")
	assert.Contains(t, r.out, "Toys")

	r = execute(t, api, "", "products", "create", "--name", "Nothing")
	require.Error(t, r.err)
	assert.Contains(t, r.errOut, "invalid input:")
	assert.Contains(t, r.errOut, "  price: ")

	r = execute(t, api, "", "products", "create", "--name", "X", "--description", "d",
		"--price", "1", "--brand", "b", "--category", "Nope")
	require.Error(t, r.err)
	assert.True(t, errors.IsNotFound(r.err))
}

func TestProductsImport(t *testing.T) {
	api := newAPI(t)
	path := filepath.Join(t.TempDir(), "products.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"id,name,description,price,category_id,brand\n"+
			",Lamp,Desk lamp,19.90,3,Lumo\n"+
			",Ghost,Missing category,5,99,None\n"+
			",Broken,bad price,abc,1,Acme\n"), 0o644))

	r := execute(t, api, "", "products", "import", path)
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Attempted to add 2 products. Successfully added 1.")
	assert.Contains(t, r.out, "Data type/format error")
	assert.Contains(t, r.out, "Category ID 99 not found")

	r = execute(t, api, "", "products", "import", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, r.err)
}

func TestDashboardAndExport(t *testing.T) {
	api := newAPI(t)

	r := execute(t, api, "", "dashboard")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Registered products")
	assert.Contains(t, r.out, "19")
	assert.Contains(t, r.out, "Month")

	r = execute(t, api, "", "dashboard", "--category", "Garden")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "Registered products")

	out := filepath.Join(t.TempDir(), "sales.csv")
	r = execute(t, api, "", "export", "-o", out)
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.errOut, out+": ")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 41)
	assert.True(t, strings.HasPrefix(lines[0], "sale_id,product_id,product_name"))

	r = execute(t, api, "", "export", "-o", "-")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "sale_id,product_id")
}

func TestShell(t *testing.T) {
	api := newAPI(t)
	script := strings.Join([]string{
		"products",
		"next",
		"url",
		"filter category Books",
		"url",
		"bogus",
		"categories",
		"add-category Puzzles",
		"open /categories?name=puzz",
		"quit",
		"products",
	}, "\n")

	r := execute(t, api, script, "shell")
	require.NoError(t, r.err, r.errOut)
	assert.Contains(t, r.out, "commands:")
	assert.Contains(t, r.out, "/products?page=2\n")
	assert.Contains(t, r.out, "/products?category=Books\n")
	assert.Contains(t, r.out, `error: unknown command "bogus", try help`)
	assert.Contains(t, r.out, "Puzzles")
	assert.Contains(t, r.out, "view: /categories?name=puzz")
}

func TestConfigErrors(t *testing.T) {
	r := execute(t, "", "", "categories", "list")
	require.Error(t, r.err)
	assert.True(t, errors.IsValidation(r.err))

	r = execute(t, "http://127.0.0.1:1", "", "--config", filepath.Join(t.TempDir(), "none.yaml"), "dashboard")
	require.Error(t, r.err)
}
