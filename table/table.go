// Package table 把列表数据渲染为终端表格
package table

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// EmptyText 无数据时唯一一行的内容
const EmptyText = "No results."

// Column 列定义
type Column[T any] struct {
	Key    string
	Header string
	Cell   func(row T) string
}

// Text 便捷构造
func Text[T any](key, header string, cell func(row T) string) Column[T] {
	return Column[T]{Key: key, Header: header, Cell: cell}
}

// Headers 表头
func Headers[T any](cols []Column[T]) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Header
	}
	return out
}

// Rows 把数据转换为单元格
func Rows[T any](cols []Column[T], rows []T) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		line := make([]string, len(cols))
		for i, c := range cols {
			if c.Cell != nil {
				line[i] = c.Cell(r)
			}
		}
		out = append(out, line)
	}
	return out
}

// Render 渲染表格；rows 为空时输出一行 EmptyText
func Render[T any](w io.Writer, cols []Column[T], rows []T) {
	tw := newWriter(w)
	tw.SetHeader(Headers(cols))
	if len(rows) == 0 {
		tw.Append(emptyRow(len(cols), EmptyText))
	} else {
		tw.AppendBulk(Rows(cols, rows))
	}
	tw.Render()
}

// RenderMessage 渲染只有一行提示的表格（加载中、错误）
func RenderMessage(w io.Writer, headers []string, msg string) {
	tw := newWriter(w)
	tw.SetHeader(headers)
	tw.Append(emptyRow(len(headers), msg))
	tw.Render()
}

// RenderKV 渲染两列的键值表
func RenderKV(w io.Writer, pairs [][2]string) {
	tw := newWriter(w)
	for _, p := range pairs {
		tw.Append([]string{p[0], p[1]})
	}
	tw.Render()
}

func newWriter(w io.Writer) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	return tw
}

func emptyRow(width int, msg string) []string {
	if width < 1 {
		width = 1
	}
	row := make([]string, width)
	row[0] = msg
	return row
}

// Pager 分页栏
type Pager struct {
	PageSizes []int
	PageSize  int
	Page      int
	PageCount int
	First     int
	Last      int
	Total     int
	CanPrev   bool
	CanNext   bool
}

// Summary 形如 "1–10 of 25"
func (p Pager) Summary() string {
	return fmt.Sprintf("%d–%d of %d", p.First, p.Last, p.Total)
}

// RenderPager 渲染分页栏，不可用的按钮显示为 "-"
func RenderPager(w io.Writer, p Pager) {
	sizes := make([]string, len(p.PageSizes))
	for i, s := range p.PageSizes {
		if s == p.PageSize {
			sizes[i] = fmt.Sprintf("[%d]", s)
		} else {
			sizes[i] = fmt.Sprint(s)
		}
	}
	button := func(label string, enabled bool) string {
		if enabled {
			return label
		}
		return "-"
	}
	page := fmt.Sprintf("page %d/%d", p.Page+1, max(p.PageCount, 1))
	if p.PageCount == 0 {
		page = "page 0/0"
	}
	fmt.Fprintf(w, "Show results: %s   %s   %s   %s %s %s %s\n",
		strings.Join(sizes, " "), p.Summary(), page,
		button("«", p.CanPrev), button("‹", p.CanPrev),
		button("›", p.CanNext), button("»", p.CanNext))
}
