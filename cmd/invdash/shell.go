package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"invdash/errors"
	"invdash/inventory"
	"invdash/query"
)

const shellHelp = `commands:
  categories | products        switch table
  next | prev | first | last   move between pages
  page N | size N              jump to page N (from 1), change page size
  search TEXT                  filter by name (debounced)
  filter NAME VALUE            set a filter, e.g. "filter category Books"
  clear [NAME] | reset         clear one filter or all of them
  url | open URL               print or restore a shareable view
  refresh                      reload the current page
  add-category NAME            create a category
  rename-category ID NAME      rename a category
  dashboard [CATEGORY_ID]      show sales KPIs
  help | quit`

// pageView TableView 中与元素类型无关的部分
type pageView interface {
	NextPage() error
	PrevPage() error
	FirstPage() error
	LastPage() error
	SetPage(n int) error
	SetPageSize(size int) error
	SetFilter(name, value string) error
	ClearFilter(name string) error
	ResetFilters() error
	Refresh()
	URL() string
	ApplyURL(raw string) error
	Render(w io.Writer)
	Close()
}

type shellView struct {
	pageView
	wait func(ctx context.Context) error
}

func newShellView[T any](v *query.TableView[T]) shellView {
	return shellView{pageView: v, wait: func(ctx context.Context) error {
		_, err := v.Wait(ctx)
		return err
	}}
}

// shell 交互式表格浏览
//
// 表格在每次加载完成后重绘，包括其它命令或其它进程引起的失效重载。
type shell struct {
	a      *app
	mu     sync.Mutex
	views  map[string]shellView
	active string
	search *query.Debouncer[string]
}

func newShell(a *app) *shell {
	s := &shell{a: a, views: map[string]shellView{}, active: inventory.NamespaceProducts}

	var categories *query.TableView[inventory.Category]
	categories = inventory.NewCategoriesView(a.qc, a.api, a.cfg.Table.PageSize,
		func(snap query.Snapshot[inventory.Category]) {
			s.redraw(inventory.NamespaceCategories, snap.State.Status, categories)
		})
	var products *query.TableView[inventory.Product]
	products = inventory.NewProductsView(a.qc, a.api, a.cfg.Table.PageSize,
		func(snap query.Snapshot[inventory.Product]) {
			s.redraw(inventory.NamespaceProducts, snap.State.Status, products)
		})

	s.views[inventory.NamespaceCategories] = newShellView(categories)
	s.views[inventory.NamespaceProducts] = newShellView(products)
	s.search = query.NewDebouncer(a.cfg.Table.SearchDebounce, func(text string) {
		if err := s.current().SetFilter(inventory.FilterName, text); err != nil {
			s.printf("error: %v\n", err)
		}
	})
	return s
}

func (s *shell) current() shellView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views[s.active]
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.a.out, format, args...)
}

// redraw 只重绘当前表格的完成状态
func (s *shell) redraw(namespace string, status query.Status, v pageView) {
	if status != query.StatusSuccess && status != query.StatusError {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if namespace != s.active || v == nil {
		return
	}
	v.Render(s.a.out)
	fmt.Fprintf(s.a.out, "view: %s\n", v.URL())
}

func (s *shell) close() {
	s.search.Stop()
	for _, v := range s.views {
		v.Close()
	}
}

// run 逐行读取命令直到 quit 或输入结束
func (s *shell) run(ctx context.Context, in io.Reader) error {
	defer s.close()
	s.current().Refresh()
	_ = s.current().wait(ctx)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		quit, err := s.exec(ctx, line)
		if err != nil {
			if errors.IsCanceled(err) {
				return nil
			}
			s.printf("error: %s\n", message(err))
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func message(err error) string {
	if appErr, ok := err.(errors.IError); ok {
		return appErr.Message()
	}
	return err.Error()
}

func (s *shell) exec(ctx context.Context, line string) (quit bool, err error) {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	v := s.current()

	switch cmd {
	case "quit", "exit", "q":
		return true, nil
	case "help", "?":
		s.printf("%s\n", shellHelp)
		return false, nil
	case inventory.NamespaceCategories, inventory.NamespaceProducts:
		s.mu.Lock()
		s.active = cmd
		s.mu.Unlock()
		s.search.Stop()
		v = s.current()
		v.Refresh()
	case "next":
		err = v.NextPage()
	case "prev":
		err = v.PrevPage()
	case "first":
		err = v.FirstPage()
	case "last":
		err = v.LastPage()
	case "page":
		var n int
		if n, err = strconv.Atoi(rest); err == nil {
			err = v.SetPage(n - 1)
		}
	case "size":
		var n int
		if n, err = strconv.Atoi(rest); err == nil {
			err = v.SetPageSize(n)
		}
	case "search":
		s.search.Call(rest)
		return false, nil
	case "filter":
		name, value, _ := strings.Cut(rest, " ")
		err = v.SetFilter(name, strings.TrimSpace(value))
	case "clear":
		if rest == "" {
			rest = inventory.FilterName
		}
		err = v.ClearFilter(rest)
	case "reset":
		err = v.ResetFilters()
	case "url":
		s.printf("%s\n", v.URL())
		return false, nil
	case "open":
		err = v.ApplyURL(rest)
	case "refresh":
		v.Refresh()
	case "add-category":
		_, err = s.a.mutations.CreateCategory.Run(ctx, inventory.CategoryInput{Name: rest})
	case "rename-category":
		idText, name, _ := strings.Cut(rest, " ")
		var id int
		if id, err = strconv.Atoi(idText); err == nil {
			_, err = s.a.mutations.UpdateCategory.Run(ctx, inventory.CategoryUpdate{ID: id, Name: strings.TrimSpace(name)})
		}
	case "dashboard":
		id, _ := strconv.Atoi(rest)
		var d inventory.Dashboard
		if d, err = inventory.FetchDashboard(ctx, s.a.qc, s.a.api, id); err == nil {
			s.mu.Lock()
			renderDashboard(s.a.out, d)
			s.mu.Unlock()
		}
		return false, err
	default:
		return false, errors.NewError(errors.ErrCodeInvalidInput, "unknown command "+strconv.Quote(cmd)+", try help")
	}
	if err != nil {
		return false, err
	}
	return false, v.wait(ctx)
}

func newShellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Browse categories and products interactively",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, _ []string) error {
			s := newShell(a)
			s.printf("%s\n", shellHelp)
			return s.run(ctx, cmd.InOrStdin())
		}),
	}
}
