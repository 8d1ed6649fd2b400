package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"invdash/query"
)

// listFlags 列表命令共享的参数
type listFlags struct {
	page    int
	size    int
	viewURL string
	filters map[string]*string
}

func addListFlags(cmd *cobra.Command, f *listFlags, filters ...string) {
	cmd.Flags().IntVar(&f.page, "page", 1, "page number, starting at 1")
	cmd.Flags().IntVar(&f.size, "size", 0, "page size: 10, 20, 50 or 100 (default from config)")
	cmd.Flags().StringVar(&f.viewURL, "url", "", "restore a shared view URL, overrides the other flags")
	f.filters = make(map[string]*string, len(filters))
	for _, name := range filters {
		f.filters[name] = cmd.Flags().String(name, "", "filter by "+name)
	}
}

// url 由参数组装视图地址
func (f *listFlags) url(namespace string, defaultSize int) string {
	if f.viewURL != "" {
		return f.viewURL
	}
	params := url.Values{}
	for name, v := range f.filters {
		if *v != "" {
			params.Set(name, *v)
		}
	}
	if f.page > 1 {
		params.Set("page", strconv.Itoa(f.page))
	}
	size := f.size
	if size == 0 {
		size = defaultSize
	}
	params.Set("size", strconv.Itoa(size))
	return "/" + namespace + "?" + params.Encode()
}

// showView 加载一页并输出表格与可分享地址
func showView[T any](ctx context.Context, a *app, view *query.TableView[T], viewURL string) error {
	defer view.Close()
	if err := view.ApplyURL(viewURL); err != nil {
		return err
	}
	snap, err := view.Wait(ctx)
	if err != nil {
		return err
	}
	// 页码越界时视图收敛到最后一页并以新键重新加载
	for i := 0; i < 2 && snap.Stale(); i++ {
		if snap, err = view.Wait(ctx); err != nil {
			return err
		}
	}
	view.Render(a.out)
	fmt.Fprintf(a.out, "view: %s\n", view.URL())
	if snap.State.Status == query.StatusError {
		return snap.State.Err
	}
	return nil
}
