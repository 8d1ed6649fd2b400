// Package validation 表单输入校验
//
// 基于 go-playground/validator 的结构体标签校验，失败时返回带字段消息的 VALIDATION_ERROR。
// 字段名取 json 标签，与服务端参数保持一致。
package validation

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"invdash/errors"
)

var priceRegex = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)

// IValidator 定义通用验证器接口
type IValidator interface {
	Validate(value any) error
}

// NoopValidator 默认验证器，实现为空操作
type NoopValidator struct{}

// Validate 实现 IValidator 接口
func (NoopValidator) Validate(value any) error {
	return nil
}

// StructValidator 基于结构体标签的验证器
type StructValidator struct {
	v *validator.Validate
}

var (
	defaultOnce sync.Once
	defaultV    *StructValidator
)

// Default 进程内共享的验证器
func Default() *StructValidator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// New 创建验证器并注册自定义规则
//
// 自定义规则：
//   - price：非负的十进制金额字符串，最多两位小数
//   - notblank：去掉首尾空白后不能为空
func New() *StructValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		return priceRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return &StructValidator{v: v}
}

// Validate 实现 IValidator 接口
func (s *StructValidator) Validate(value any) error {
	err := s.v.Struct(value)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !stdErrors.As(err, &verrs) {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid input")
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, seen := fields[fe.Field()]; !seen {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	return errors.NewValidationError(summary(fields), fields)
}

// Struct 使用默认验证器校验
func Struct(value any) error {
	return Default().Validate(value)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at least %s character(s)", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must contain at most %s character(s)", fe.Param())
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "price":
		return "must be a valid amount"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// summary 按字段名排序后拼接，保证消息稳定
func summary(fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + " " + fields[name]
	}
	return strings.Join(parts, "; ")
}

// ValidateRequired 验证必填字段
func ValidateRequired(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationError(fieldName+" is required",
			map[string]string{fieldName: "is required"})
	}
	return nil
}

// ValidateIntEnum 验证整数枚举值
func ValidateIntEnum(value int, fieldName string, validValues []int) error {
	for _, valid := range validValues {
		if value == valid {
			return nil
		}
	}
	names := make([]string, len(validValues))
	for i, v := range validValues {
		names[i] = strconv.Itoa(v)
	}
	msg := "must be one of: " + strings.Join(names, ", ")
	return errors.NewValidationError(fieldName+" "+msg, map[string]string{fieldName: msg})
}

// ValidateNonNegative 验证非负数（时长、数量）
func ValidateNonNegative[N ~int | ~int64](value N, fieldName string) error {
	if value < 0 {
		return errors.NewValidationError(fieldName+" must not be negative",
			map[string]string{fieldName: "must not be negative"})
	}
	return nil
}
