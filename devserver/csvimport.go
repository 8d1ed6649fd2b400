package devserver

import (
	"encoding/csv"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"invdash/errors"
	"invdash/inventory"
)

// productColumnsCSV 导入文件的列数：id, name, description, price, category_id, brand（id 忽略）
const productColumnsCSV = 6

// maxImportBytes 单个导入文件上限
const maxImportBytes = 10 << 20

// ParseProductsCSV 解析导入文件
//
// 表头缺失或列数不足时整体拒绝（400）；数据行的问题按行记录，行号从 1 开始且不含表头。
func ParseProductsCSV(r io.Reader) ([]NewProduct, []inventory.ParseError, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxImportBytes))
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "read upload")
	}
	if !utf8.Valid(data) {
		return nil, nil, errors.FromStatus(http.StatusBadRequest, "File encoding must be UTF-8")
	}

	cr := csv.NewReader(strings.NewReader(string(data)))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil || len(header) < productColumnsCSV {
		return nil, nil, errors.FromStatus(http.StatusBadRequest,
			"Invalid CSV format. Expected 6 columns: id, name, description, price, category_id, brand")
	}

	products := []NewProduct{}
	parseErrs := []inventory.ParseError{}
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if !stdErrors.As(err, &pe) {
				return nil, nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "read csv")
			}
			parseErrs = append(parseErrs, inventory.ParseError{Row: row, Error: "Unexpected parsing error: " + pe.Err.Error()})
			continue
		}
		p, msg := parseProductRecord(rec)
		if msg != "" {
			parseErrs = append(parseErrs, inventory.ParseError{Row: row, Error: msg})
			continue
		}
		products = append(products, p)
	}
	return products, parseErrs, nil
}

func parseProductRecord(rec []string) (NewProduct, string) {
	if len(rec) < productColumnsCSV {
		return NewProduct{}, "Invalid number of columns (expected 6)"
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
	if err != nil {
		return NewProduct{}, fmt.Sprintf("Data type/format error: could not convert price %q", rec[3])
	}
	categoryID, err := strconv.Atoi(strings.TrimSpace(rec[4]))
	if err != nil {
		return NewProduct{}, fmt.Sprintf("Data type/format error: invalid category_id %q", rec[4])
	}
	name := strings.TrimSpace(rec[1])
	if name == "" {
		return NewProduct{}, "Validation error: name is required"
	}
	return NewProduct{
		Name:        name,
		Description: rec[2],
		Price:       price,
		CategoryID:  categoryID,
		Brand:       rec[5],
	}, ""
}

// ImportMessage 导入结果摘要
func ImportMessage(attempted, created int) string {
	if attempted == 0 {
		return "CSV processing complete. No valid products found to add."
	}
	return fmt.Sprintf("CSV processing complete. Attempted to add %d products. Successfully added %d.", attempted, created)
}

// salesCSVHeader 导出文件表头
var salesCSVHeader = []string{
	"sale_id", "product_id", "product_name", "product_description",
	"product_price", "product_brand", "category_id", "category_name",
	"quantity", "total_price", "date",
}

func salesCSVRecord(s inventory.Sale) []string {
	p := s.Product
	return []string{
		strconv.Itoa(s.ID),
		strconv.Itoa(s.ProductID),
		p.Name,
		p.Description,
		formatCents(p.Price),
		p.Brand,
		strconv.Itoa(p.Category.ID),
		p.Category.Name,
		strconv.Itoa(s.Quantity),
		formatCents(s.TotalPrice),
		s.Date.Format("2006-01-02"),
	}
}
