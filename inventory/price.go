package inventory

import (
	"regexp"
	"strconv"
	"strings"

	"invdash/errors"
	"invdash/table"
)

var nonPrice = regexp.MustCompile(`[^\d.]`)

// RemoveMask 去掉金额输入中除数字和小数点以外的字符
func RemoveMask(masked string) string {
	return nonPrice.ReplaceAllString(masked, "")
}

// ParsePrice 把带掩码的金额（如 "$1,234.56"）转换为两位小数的字符串
func ParsePrice(masked string) (string, error) {
	raw := RemoveMask(masked)
	if raw == "" {
		return "", errors.NewValidationError("price is required", map[string]string{"price": "is required"})
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", errors.NewValidationError("price must be a valid amount",
			map[string]string{"price": "must be a valid amount"})
	}
	return strconv.FormatFloat(v, 'f', 2, 64), nil
}

// MaskPrice 输入时的金额掩码：只取数字，按分解释
//
// "123456" → "$1,234.56"，"5" → "$0.05"，没有数字时返回空串。
func MaskPrice(input string) string {
	var digits strings.Builder
	for _, r := range input {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return ""
	}
	cents, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return ""
	}
	return table.USD(float64(cents) / 100)
}
