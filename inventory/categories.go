package inventory

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"invdash/query"
	"invdash/validation"
)

// allCategoriesPageSize 拉取全部分类时每页条数
const allCategoriesPageSize = 100

// CategoryInput 创建分类表单
type CategoryInput struct {
	Name string `json:"name" validate:"notblank,max=100"`
}

// Validate 提交前校验
func (in CategoryInput) Validate() error { return validation.Struct(in) }

// CategoryUpdate 修改分类表单
type CategoryUpdate struct {
	ID   int    `json:"id" validate:"gt=0"`
	Name string `json:"name" validate:"notblank,max=100"`
}

func (in CategoryUpdate) Validate() error { return validation.Struct(in) }

// ListCategories GET /categories?skip&limit&name
func (c *Client) ListCategories(ctx context.Context, params url.Values) (query.Page[Category], error) {
	var out categoryList
	if err := c.getJSON(ctx, "categories", params, &out); err != nil {
		return query.Page[Category]{}, err
	}
	return out.page(), nil
}

// AllCategories 分页拉取全部分类，用于过滤器与表单的分类选项
func (c *Client) AllCategories(ctx context.Context) ([]Category, error) {
	var all []Category
	for skip := 0; ; skip += allCategoriesPageSize {
		params := url.Values{}
		params.Set("skip", strconv.Itoa(skip))
		params.Set("limit", strconv.Itoa(allCategoriesPageSize))
		page, err := c.ListCategories(ctx, params)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if len(page.Items) < allCategoriesPageSize || len(all) >= page.Total {
			return nonNil(all), nil
		}
	}
}

// CreateCategory POST /categories
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (Category, error) {
	var out Category
	err := c.sendJSON(ctx, http.MethodPost, "categories", CategoryInput{Name: in.Name}, &out)
	return out, err
}

// UpdateCategory PATCH /categories/{id}
func (c *Client) UpdateCategory(ctx context.Context, in CategoryUpdate) (Category, error) {
	var out Category
	err := c.sendJSON(ctx, http.MethodPatch, "categories/"+strconv.Itoa(in.ID), CategoryInput{Name: in.Name}, &out)
	return out, err
}
