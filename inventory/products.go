package inventory

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"

	"invdash/errors"
	"invdash/query"
	"invdash/validation"
)

// ProductInput 创建商品表单
//
// Price 是带掩码的输入（如 "$1,234.56"），提交时转换为两位小数。
type ProductInput struct {
	Name        string `json:"name" validate:"notblank,max=200"`
	Description string `json:"description" validate:"notblank"`
	Price       string `json:"price" validate:"notblank"`
	CategoryID  int    `json:"category_id" validate:"gt=0"`
	Brand       string `json:"brand" validate:"notblank,max=100"`
}

// Validate 结构校验加金额解析，字段错误合并返回
func (in ProductInput) Validate() error {
	err := validation.Struct(in)
	fields := errors.FieldErrors(err)
	if _, bad := fields["price"]; !bad && in.Price != "" {
		if _, perr := ParsePrice(in.Price); perr != nil {
			merged := map[string]string{"price": errors.FieldErrors(perr)["price"]}
			for k, v := range fields {
				merged[k] = v
			}
			return errors.NewValidationError("invalid product", merged)
		}
	}
	return err
}

type productPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	CategoryID  int    `json:"category_id"`
	Brand       string `json:"brand"`
}

// ListProducts GET /products?skip&limit&category&name
func (c *Client) ListProducts(ctx context.Context, params url.Values) (query.Page[Product], error) {
	var out productList
	if err := c.getJSON(ctx, "products", params, &out); err != nil {
		return query.Page[Product]{}, err
	}
	return out.page(), nil
}

// CreateProduct POST /products
func (c *Client) CreateProduct(ctx context.Context, in ProductInput) (Product, error) {
	price, err := ParsePrice(in.Price)
	if err != nil {
		return Product{}, err
	}
	payload := productPayload{
		Name:        in.Name,
		Description: in.Description,
		Price:       price,
		CategoryID:  in.CategoryID,
		Brand:       in.Brand,
	}
	var out Product
	err = c.sendJSON(ctx, http.MethodPost, "products", payload, &out)
	return out, err
}

// CSVFile 待导入的文件
type CSVFile struct {
	Name string
	Body io.Reader
}

// ImportProductsCSV POST /products/upload-csv（multipart，字段名 file）
//
// 行级错误不视为失败，由 ImportReport 携带。
func (c *Client) ImportProductsCSV(ctx context.Context, file CSVFile) (ImportReport, error) {
	if file.Body == nil {
		return ImportReport{}, errors.NewValidationError("file is required", map[string]string{"file": "is required"})
	}
	name := filepath.Base(file.Name)
	if name == "." || name == "/" || name == "" {
		name = "products.csv"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return ImportReport{}, errors.WrapError(err, errors.ErrCodeInternal, "build upload")
	}
	if _, err := io.Copy(part, file.Body); err != nil {
		return ImportReport{}, errors.WrapError(err, errors.ErrCodeInvalidInput, "read csv file")
	}
	if err := mw.Close(); err != nil {
		return ImportReport{}, errors.WrapError(err, errors.ErrCodeInternal, "build upload")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "products/upload-csv", nil, &buf)
	if err != nil {
		return ImportReport{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var report ImportReport
	if err := c.roundTrip(req, &report); err != nil {
		return ImportReport{}, err
	}
	return report, nil
}
