package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"invdash/errors"
	"invdash/logging"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 15 * time.Second

	// RequestIDHeader 每个请求携带的追踪标识
	RequestIDHeader = "X-Request-ID"

	maxErrorBody = 64 << 10
)

// ClientOptions API 客户端配置
type ClientOptions struct {
	BaseURL string
	// Timeout 单个请求的超时，0 使用默认值，对下载同样生效
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client 库存 API 客户端
//
// 所有方法都接受 context，取消时底层请求随之中止。
type Client struct {
	base   *url.URL
	http   *http.Client
	logger logging.Logger
}

// NewClient 创建客户端
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, fmt.Sprintf("invalid api base url %q", opts.BaseURL))
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logging.ComponentLogger("inventory.client")
	}
	return &Client{base: base, http: opts.HTTPClient, logger: opts.Logger}, nil
}

// BaseURL API 根地址
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string, params url.Values) string {
	u := c.base.JoinPath(path)
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u.String()
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, params), body)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeInvalidInput, "build request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

// do 发送请求；非 2xx 响应转换为带错误码的错误并关闭响应体
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	fields := []logging.Field{
		logging.String("method", req.Method),
		logging.String("path", req.URL.Path),
		logging.String("request_id", req.Header.Get(RequestIDHeader)),
	}

	resp, err := c.http.Do(req)
	if err != nil {
		err = errors.Normalize(err)
		if !errors.IsCanceled(err) {
			c.logger.Warn(req.Context(), "api request failed", append(fields, logging.Error(err))...)
		}
		return nil, err
	}
	fields = append(fields,
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := decodeError(resp)
		c.logger.Warn(req.Context(), "api request rejected", append(fields, logging.Error(apiErr))...)
		return nil, apiErr
	}
	c.logger.Debug(req.Context(), "api request", fields...)
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}
	return c.roundTrip(req, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.WrapError(err, errors.ErrCodeInvalidInput, "encode request body")
	}
	req, err := c.newRequest(ctx, method, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.roundTrip(req, out)
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = errors.Normalize(err)
		if errors.IsCanceled(err) {
			return err
		}
		return errors.WrapError(err, errors.ErrCodeInternal, "decode response")
	}
	return nil
}

// validationItem FastAPI 422 响应中 detail 的元素
type validationItem struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// decodeError 解析 {"detail": "..."} 或 {"detail": [{"loc": [...], "msg": "..."}]}
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	var detail string
	fields := map[string]string{}
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 {
		var items []validationItem
		if err := json.Unmarshal(body.Detail, &detail); err != nil && json.Unmarshal(body.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				name := locName(it.Loc)
				if name != "" {
					fields[name] = it.Msg
					msgs = append(msgs, name+": "+it.Msg)
				} else {
					msgs = append(msgs, it.Msg)
				}
			}
			detail = strings.Join(msgs, "; ")
		}
	}

	err := errors.FromStatus(resp.StatusCode, detail)
	if len(fields) > 0 {
		if appErr, ok := err.(errors.IError); ok {
			return appErr.WithContext("fields", fields)
		}
	}
	return err
}

func locName(loc []any) string {
	if len(loc) == 0 {
		return ""
	}
	switch v := loc[len(loc)-1].(type) {
	case string:
		return v
	case float64:
		return strconv.Itoa(int(v))
	default:
		return ""
	}
}
