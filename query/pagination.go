package query

import (
	"invdash/errors"
)

// DefaultPageSize 非法或缺省页大小时的回退值
const DefaultPageSize = 10

// PageSizes 允许的页大小
var PageSizes = []int{10, 20, 50, 100}

var (
	// ErrInvalidPageSize 页大小不在 PageSizes 中
	ErrInvalidPageSize = errors.NewError(errors.ErrCodeInvalidInput, "invalid page size")
	// ErrPageOutOfRange 页码越界
	ErrPageOutOfRange = errors.NewError(errors.ErrCodeInvalidInput, "page out of range")
)

// ValidPageSize 判断页大小是否合法
func ValidPageSize(size int) bool {
	for _, s := range PageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// NormalizePageSize 非法值回退到 DefaultPageSize
func NormalizePageSize(size int) int {
	if ValidPageSize(size) {
		return size
	}
	return DefaultPageSize
}

// Pagination 分页状态
//
// 页码从 0 开始。总数在首次成功加载前未知，此时不做上界校验。
// 非并发安全，由持有者（TableView）加锁。
type Pagination struct {
	page       int
	pageSize   int
	total      int
	totalKnown bool
}

// NewPagination 创建分页状态
func NewPagination(pageSize int) Pagination {
	return Pagination{pageSize: NormalizePageSize(pageSize)}
}

func (p *Pagination) Page() int     { return p.page }
func (p *Pagination) PageSize() int { return p.pageSize }
func (p *Pagination) Total() int    { return p.total }

// TotalKnown 是否已从服务端拿到总数
func (p *Pagination) TotalKnown() bool { return p.totalKnown }

// Offset 等于 page*pageSize
func (p *Pagination) Offset() int { return p.page * p.pageSize }

// PageCount 等于 ceil(total/pageSize)，total 为 0 时为 0
func (p *Pagination) PageCount() int {
	if p.total <= 0 {
		return 0
	}
	return (p.total + p.pageSize - 1) / p.pageSize
}

// FirstItemIndex 当前页第一条的序号（从 1 开始），无数据时为 0
func (p *Pagination) FirstItemIndex() int {
	if p.total <= 0 {
		return 0
	}
	return min(p.Offset()+1, p.total)
}

// LastItemIndex 等于 min(offset+pageSize, total)
func (p *Pagination) LastItemIndex() int {
	return min(p.Offset()+p.pageSize, p.total)
}

func (p *Pagination) CanPrev() bool { return p.page > 0 }

// CanNext total 为 0 时始终为 false
func (p *Pagination) CanNext() bool { return p.page+1 < p.PageCount() }

// SetPage 跳转页
//
// 第 0 页总是合法的；总数已知时 n 必须小于 PageCount。
func (p *Pagination) SetPage(n int) error {
	if n < 0 {
		return ErrPageOutOfRange
	}
	if n > 0 && p.totalKnown && n >= p.PageCount() {
		return ErrPageOutOfRange
	}
	p.page = n
	return nil
}

// SetPageSize 修改页大小并回到第 0 页
func (p *Pagination) SetPageSize(size int) error {
	if !ValidPageSize(size) {
		return ErrInvalidPageSize
	}
	p.pageSize = size
	p.page = 0
	return nil
}

// Reset 回到第 0 页
func (p *Pagination) Reset() { p.page = 0 }

// SetTotal 记录服务端总数，当前页越界时收敛到最后一页
//
// 返回值表示页码是否被调整。
func (p *Pagination) SetTotal(total int) bool {
	if total < 0 {
		total = 0
	}
	p.total = total
	p.totalKnown = true

	count := p.PageCount()
	if p.page > 0 && p.page >= count {
		p.page = max(count-1, 0)
		return true
	}
	return false
}
