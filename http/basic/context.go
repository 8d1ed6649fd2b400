package basic

import (
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"invdash/errors"
	httpx "invdash/http"
)

// maxBodyBytes JSON 请求体上限
const maxBodyBytes = 1 << 20

// maxUploadBytes 上传文件在内存中的上限，超出部分写入临时文件
const maxUploadBytes = 10 << 20

var _ httpx.IHttpContext = (*HttpContext)(nil)

type HttpContext struct {
	request *http.Request
	writer  http.ResponseWriter
	status  int
	written bool
	values  map[string]any
}

func NewBaseHttpContext(w http.ResponseWriter, r *http.Request) *HttpContext {
	return &HttpContext{
		request: r,
		writer:  w,
		status:  http.StatusOK,
		values:  make(map[string]any),
	}
}

func (c *HttpContext) GetMethod() string           { return c.request.Method }
func (c *HttpContext) GetPath() string             { return c.request.URL.Path }
func (c *HttpContext) GetQuery(key string) string  { return c.request.URL.Query().Get(key) }
func (c *HttpContext) GetQueryParams() url.Values  { return c.request.URL.Query() }
func (c *HttpContext) GetParam(key string) string  { return c.request.PathValue(key) }
func (c *HttpContext) GetHeader(key string) string { return c.request.Header.Get(key) }
func (c *HttpContext) GetRequest() *http.Request   { return c.request }

func (c *HttpContext) Context() context.Context       { return c.request.Context() }
func (c *HttpContext) SetContext(ctx context.Context) { c.request = c.request.WithContext(ctx) }

func (c *HttpContext) BindJSON(obj any) error {
	dec := json.NewDecoder(io.LimitReader(c.request.Body, maxBodyBytes))
	if err := dec.Decode(obj); err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "failed to parse JSON")
	}
	return nil
}

func (c *HttpContext) FormFile(name string) (multipart.File, *multipart.FileHeader, error) {
	if err := c.request.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "invalid multipart form")
	}
	f, hdr, err := c.request.FormFile(name)
	if err != nil {
		return nil, nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "missing form file: "+name)
	}
	return f, hdr, nil
}

func (c *HttpContext) SetHeader(key, value string) { c.writer.Header().Set(key, value) }
func (c *HttpContext) Status() int                 { return c.status }
func (c *HttpContext) Written() bool               { return c.written }

func (c *HttpContext) writeHeader(code int, contentType string) {
	c.SetHeader("Content-Type", contentType)
	c.status = code
	c.written = true
	c.writer.WriteHeader(code)
}

func (c *HttpContext) JSON(code int, obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInternal, "failed to serialize JSON")
	}
	return c.Data(code, "application/json", data)
}

func (c *HttpContext) Data(code int, contentType string, data []byte) error {
	c.writeHeader(code, contentType)
	_, err := c.writer.Write(data)
	return err
}

func (c *HttpContext) Stream(code int, contentType string, fn func(w io.Writer) error) error {
	c.writeHeader(code, contentType)
	return fn(c.writer)
}

func (c *HttpContext) Set(key string, value any) { c.values[key] = value }
func (c *HttpContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}
