package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"invdash/errors"
)

// FieldKind 过滤字段的值类型
type FieldKind int

const (
	KindString FieldKind = iota
	KindInt
)

// FilterField 过滤字段定义
type FilterField struct {
	// Name 字段名，同时用作 URL 参数名
	Name string
	// Param 发给服务端时的参数名，为空时等于 Name
	Param string
	// Default 默认值，空串表示不过滤
	Default string
	Kind    FieldKind
}

func (f FilterField) param() string {
	if f.Param != "" {
		return f.Param
	}
	return f.Name
}

// coerce 按类型校验并规整取值，空串总是合法的
func (f FilterField) coerce(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	switch f.Kind {
	case KindInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return "", errors.NewError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("filter %s expects an integer, got %q", f.Name, value))
		}
		return strconv.FormatInt(n, 10), nil
	default:
		return value, nil
	}
}

// FilterSchema 一个列表视图可用的过滤字段集合
type FilterSchema struct {
	fields []FilterField
	index  map[string]int
}

// NewFilterSchema 创建过滤 schema，重名字段以后者为准
func NewFilterSchema(fields ...FilterField) *FilterSchema {
	s := &FilterSchema{index: make(map[string]int, len(fields))}
	for _, f := range fields {
		if i, ok := s.index[f.Name]; ok {
			s.fields[i] = f
			continue
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	return s
}

// Fields 按定义顺序返回字段
func (s *FilterSchema) Fields() []FilterField {
	out := make([]FilterField, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field 查找字段
func (s *FilterSchema) Field(name string) (FilterField, bool) {
	i, ok := s.index[name]
	if !ok {
		return FilterField{}, false
	}
	return s.fields[i], true
}

// FilterState 过滤条件的当前取值
type FilterState struct {
	schema *FilterSchema
	values map[string]string
}

// NewFilterState 以默认值初始化
func NewFilterState(schema *FilterSchema) *FilterState {
	if schema == nil {
		schema = NewFilterSchema()
	}
	fs := &FilterState{schema: schema, values: make(map[string]string, len(schema.fields))}
	fs.Reset()
	return fs
}

// Schema 返回所属 schema
func (fs *FilterState) Schema() *FilterSchema { return fs.schema }

// Get 取字段当前值
func (fs *FilterState) Get(name string) string { return fs.values[name] }

// Set 设置字段值，返回取值是否发生变化
func (fs *FilterState) Set(name, value string) (bool, error) {
	f, ok := fs.schema.Field(name)
	if !ok {
		return false, errors.NewError(errors.ErrCodeInvalidInput, "unknown filter: "+name)
	}
	v, err := f.coerce(value)
	if err != nil {
		return false, err
	}
	if fs.values[name] == v {
		return false, nil
	}
	fs.values[name] = v
	return true, nil
}

// Clear 将字段恢复为默认值
func (fs *FilterState) Clear(name string) bool {
	f, ok := fs.schema.Field(name)
	if !ok || fs.values[name] == f.Default {
		return false
	}
	fs.values[name] = f.Default
	return true
}

// Reset 全部恢复默认值，返回是否有变化
func (fs *FilterState) Reset() bool {
	changed := false
	for _, f := range fs.schema.fields {
		if fs.values[f.Name] != f.Default {
			changed = true
		}
		fs.values[f.Name] = f.Default
	}
	return changed
}

// Active 是否存在与默认值不同的过滤条件
func (fs *FilterState) Active() bool {
	for _, f := range fs.schema.fields {
		if fs.values[f.Name] != f.Default {
			return true
		}
	}
	return false
}

// Values 返回取值副本
func (fs *FilterState) Values() map[string]string {
	out := make(map[string]string, len(fs.values))
	for k, v := range fs.values {
		out[k] = v
	}
	return out
}

// Clone 深拷贝
func (fs *FilterState) Clone() *FilterState {
	return &FilterState{schema: fs.schema, values: fs.Values()}
}

// Params 发给服务端的参数，空值不出现
func (fs *FilterState) Params() url.Values {
	params := url.Values{}
	for _, f := range fs.schema.fields {
		if v := fs.values[f.Name]; v != "" {
			params.Set(f.param(), v)
		}
	}
	return params
}

// Encode 写入 URL 的参数，只包含与默认值不同的字段
func (fs *FilterState) Encode() url.Values {
	params := url.Values{}
	for _, f := range fs.schema.fields {
		if v := fs.values[f.Name]; v != f.Default {
			params.Set(f.Name, v)
		}
	}
	return params
}

// DecodeFilters 从 URL 参数还原过滤状态
//
// 未知参数被忽略，类型不符的取值回退为默认值。
func DecodeFilters(schema *FilterSchema, params url.Values) *FilterState {
	fs := NewFilterState(schema)
	for _, f := range fs.schema.fields {
		raw, ok := params[f.Name]
		if !ok || len(raw) == 0 {
			continue
		}
		if v, err := f.coerce(raw[0]); err == nil {
			fs.values[f.Name] = v
		}
	}
	return fs
}
