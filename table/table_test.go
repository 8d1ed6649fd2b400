package table

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type row struct {
	ID   int
	Name string
}

var cols = []Column[row]{
	Text("id", "ID", func(r row) string { return Count(int64(r.ID)) }),
	Text("name", "Name", func(r row) string { return r.Name }),
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, cols, []row{{1, "Electronics"}, {1200, "Books"}})

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Name")
	assert.Contains(t, out, "Electronics")
	assert.Contains(t, out, "1,200")
	assert.NotContains(t, out, EmptyText)
}

func TestRender_Empty(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, cols, nil)
	assert.Contains(t, buf.String(), EmptyText)
	assert.Equal(t, 1, strings.Count(buf.String(), EmptyText))
}

func TestRows(t *testing.T) {
	got := Rows(cols, []row{{7, "Toys"}})
	assert.Equal(t, [][]string{{"7", "Toys"}}, got)
	assert.Equal(t, []string{"ID", "Name"}, Headers(cols))
}

func TestPager(t *testing.T) {
	p := Pager{PageSizes: []int{10, 20}, PageSize: 10, Page: 0, PageCount: 3, First: 1, Last: 10, Total: 25, CanNext: true}
	assert.Equal(t, "1–10 of 25", p.Summary())

	var buf bytes.Buffer
	RenderPager(&buf, p)
	assert.Equal(t, "Show results: [10] 20   1–10 of 25   page 1/3   - - › »\n", buf.String())

	buf.Reset()
	RenderPager(&buf, Pager{PageSizes: []int{10}, PageSize: 10})
	assert.Equal(t, "Show results: [10]   0–0 of 0   page 0/0   - - - -\n", buf.String())
}

func TestUSD(t *testing.T) {
	assert.Equal(t, "$1,234.50", USD(1234.5))
	assert.Equal(t, "$0.00", USD(0))
	assert.Equal(t, "-$12.00", USD(-12))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "", Date(time.Time{}))
	assert.Equal(t, "2024-03-01", Date(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestCountAndBytes(t *testing.T) {
	assert.Equal(t, "1,234,567", Count(1234567))
	assert.Equal(t, "1.5 kB", Bytes(1500))
	assert.Equal(t, "0 B", Bytes(-1))
}
