package inventory

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProducts(api *fakeAPI, n int) {
	api.mu.Lock()
	defer api.mu.Unlock()
	for i := 1; i <= n; i++ {
		cat := api.categories[i%2]
		api.products = append(api.products, Product{
			ID: i, Name: fmt.Sprintf("Product %02d", i), Price: float64(i) * 10,
			Category: CategoryRef{ID: cat.ID, Name: cat.Name},
		})
	}
}

func TestProductsView_FilterAndPage(t *testing.T) {
	api := newFakeAPI()
	seedProducts(api, 25)
	c := newTestAPI(t, api)
	view := NewProductsView(newQueryClient(), c, 10, nil)
	defer view.Close()

	view.Refresh()
	snap := waitSnapshot(t, view)
	assert.Equal(t, 25, snap.Total)
	assert.Equal(t, 3, snap.PageCount)

	require.NoError(t, view.LastPage())
	snap = waitSnapshot(t, view)
	assert.Equal(t, 20, snap.Offset)
	assert.Len(t, snap.State.Page.Items, 5)
	assert.Equal(t, "/products?page=3", view.URL())

	require.NoError(t, view.SetFilter(FilterCategory, "Books"))
	snap = waitSnapshot(t, view)
	assert.Equal(t, 0, snap.Page)
	assert.Equal(t, 13, snap.Total)
	assert.Equal(t, "/products?category=Books", view.URL())
	assert.Equal(t, "Books", snap.Key.FilterValues().Get("category"))
}

func TestCategoriesView_Render(t *testing.T) {
	c := newTestAPI(t, newFakeAPI())
	view := NewCategoriesView(newQueryClient(), c, 10, nil)
	defer view.Close()

	require.NoError(t, view.ApplyURL("/categories?name=book"))
	snap := waitSnapshot(t, view)
	assert.Equal(t, 1, snap.Total)

	var buf bytes.Buffer
	view.Render(&buf)
	assert.Contains(t, buf.String(), "Books")
	assert.NotContains(t, buf.String(), "Electronics")
	assert.Contains(t, buf.String(), "1–1 of 1")

	require.NoError(t, view.SetFilter(FilterName, "nothing"))
	waitSnapshot(t, view)
	buf.Reset()
	view.Render(&buf)
	assert.Contains(t, buf.String(), "No results.")
}
