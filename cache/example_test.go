package cache_test

import (
	"fmt"
	"strings"

	"invdash/cache"
)

// ExampleCache_DeleteFunc 演示按前缀失效一组条目
func ExampleCache_DeleteFunc() {
	c := cache.New[string, int](cache.Config{Name: "pages", MaxSize: 100})

	c.Set("products?skip=0&limit=10", 10)
	c.Set("products?skip=10&limit=10", 10)
	c.Set("categories?skip=0&limit=10", 4)

	n := c.DeleteFunc(func(key string, _ int) bool {
		return strings.HasPrefix(key, "products?")
	})
	fmt.Println(n, c.Size())
	// Output: 2 1
}
