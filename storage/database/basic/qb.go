package basic

import (
	"strconv"
	"strings"
)

// SelectBuilder 最小的 SELECT 构建器
type SelectBuilder struct {
	cols    []string
	table   string
	joins   []string
	where   []string
	args    []any
	groupBy []string
	order   string
	limit   int
	offset  int
}

func NewSelect() *SelectBuilder { return &SelectBuilder{cols: []string{"*"}} }

func (b *SelectBuilder) Select(columns ...string) *SelectBuilder {
	if len(columns) > 0 {
		b.cols = columns
	}
	return b
}

func (b *SelectBuilder) From(table string) *SelectBuilder { b.table = table; return b }

// Join 追加一段 JOIN 子句，如 "JOIN categories c ON c.id = p.category_id"
func (b *SelectBuilder) Join(clause string) *SelectBuilder {
	if clause != "" {
		b.joins = append(b.joins, clause)
	}
	return b
}

func (b *SelectBuilder) Where(cond string, args ...any) *SelectBuilder {
	if cond != "" {
		b.where = append(b.where, cond)
		b.args = append(b.args, args...)
	}
	return b
}

func (b *SelectBuilder) GroupBy(cols ...string) *SelectBuilder {
	b.groupBy = append(b.groupBy, cols...)
	return b
}

func (b *SelectBuilder) OrderBy(col string, desc bool) *SelectBuilder {
	if col != "" {
		b.order = col
		if desc {
			b.order += " DESC"
		}
	}
	return b
}

func (b *SelectBuilder) Limit(n int) *SelectBuilder  { b.limit = n; return b }
func (b *SelectBuilder) Offset(n int) *SelectBuilder { b.offset = n; return b }

// Count 以相同的 FROM/JOIN/WHERE 构造计数查询，忽略排序与分页
func (b *SelectBuilder) Count() (string, []any) {
	c := *b
	c.cols = []string{"COUNT(*)"}
	c.order = ""
	c.limit = 0
	c.offset = 0
	c.groupBy = nil
	return c.Build()
}

func (b *SelectBuilder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.cols, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	if b.order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.order)
	}
	args := append([]any(nil), b.args...)
	if b.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}
	if b.offset > 0 {
		if b.limit <= 0 {
			// SQLite 要求 OFFSET 前有 LIMIT
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}
	return sb.String(), args
}
