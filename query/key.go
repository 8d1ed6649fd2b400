package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// QueryKey 唯一标识一次服务端请求
//
// 可比较，可直接作为 map 与缓存的键。Filters 是规范化编码，
// 参数顺序不影响相等性，空值不参与编码。Limit 为 0 表示不分页。
type QueryKey struct {
	Namespace string
	Offset    int
	Limit     int
	Filters   string
}

// NewQueryKey 由命名空间、分页与过滤参数构造键
func NewQueryKey(namespace string, offset, limit int, filters url.Values) QueryKey {
	return QueryKey{
		Namespace: namespace,
		Offset:    offset,
		Limit:     limit,
		Filters:   canonicalFilters(filters),
	}
}

func canonicalFilters(filters url.Values) string {
	if len(filters) == 0 {
		return ""
	}
	clean := url.Values{}
	for k, vs := range filters {
		for _, v := range vs {
			if v = strings.TrimSpace(v); v != "" {
				clean.Add(k, v)
			}
		}
	}
	for _, vs := range clean {
		sort.Strings(vs)
	}
	// Encode 按键排序
	return clean.Encode()
}

// FilterValues 解码过滤参数
func (k QueryKey) FilterValues() url.Values {
	v, err := url.ParseQuery(k.Filters)
	if err != nil {
		return url.Values{}
	}
	return v
}

// Values 服务端请求参数：skip、limit 与过滤条件
func (k QueryKey) Values() url.Values {
	v := k.FilterValues()
	if k.Limit > 0 {
		v.Set("skip", strconv.Itoa(k.Offset))
		v.Set("limit", strconv.Itoa(k.Limit))
	}
	return v
}

// String 稳定的文本形式，用作外部缓存键与单飞键
func (k QueryKey) String() string {
	var sb strings.Builder
	sb.WriteString(k.Namespace)
	sb.WriteByte('?')
	if k.Limit > 0 {
		sb.WriteString("skip=")
		sb.WriteString(strconv.Itoa(k.Offset))
		sb.WriteString("&limit=")
		sb.WriteString(strconv.Itoa(k.Limit))
		if k.Filters != "" {
			sb.WriteByte('&')
		}
	}
	sb.WriteString(k.Filters)
	return sb.String()
}

// InNamespace 判断键是否属于命名空间
func (k QueryKey) InNamespace(namespace string) bool {
	return k.Namespace == namespace
}
