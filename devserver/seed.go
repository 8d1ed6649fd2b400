package devserver

import (
	"context"
	"math/rand/v2"
	"time"

	"invdash/logging"
)

type seedProduct struct {
	name, description, brand string
	price                    float64
}

// 演示数据，按分类分组
var seedCatalog = []struct {
	category string
	products []seedProduct
}{
	{"Electronics", []seedProduct{
		{"Wireless Mouse", "Ergonomic 2.4GHz mouse", "Logitech", 29.90},
		{"Mechanical Keyboard", "Hot-swappable switches, RGB", "Keychron", 89.00},
		{"USB-C Hub", "7-in-1 adapter with HDMI", "Anker", 45.50},
		{"Noise Cancelling Headphones", "Over-ear, 30h battery", "Sony", 299.99},
		{"27\" Monitor", "QHD IPS panel", "Dell", 329.00},
	}},
	{"Books", []seedProduct{
		{"The Go Programming Language", "Donovan & Kernighan", "Addison-Wesley", 39.99},
		{"Designing Data-Intensive Applications", "Martin Kleppmann", "O'Reilly", 49.90},
		{"Clean Architecture", "Robert C. Martin", "Prentice Hall", 34.50},
		{"The Pragmatic Programmer", "20th anniversary edition", "Addison-Wesley", 42.00},
	}},
	{"Home & Kitchen", []seedProduct{
		{"French Press", "1L borosilicate glass", "Bodum", 24.90},
		{"Chef's Knife", "8 inch stainless steel", "Victorinox", 49.00},
		{"Cast Iron Skillet", "12 inch pre-seasoned", "Lodge", 39.90},
	}},
	{"Sports", []seedProduct{
		{"Yoga Mat", "6mm non-slip", "Manduka", 79.00},
		{"Running Shoes", "Neutral road running", "Asics", 129.90},
		{"Water Bottle", "Insulated 750ml", "Hydro Flask", 34.95},
	}},
	{"Toys", []seedProduct{
		{"Building Blocks Set", "500 pieces", "Lego", 59.99},
		{"Puzzle 1000", "Landscape jigsaw", "Ravensburger", 19.90},
	}},
	{"Garden", []seedProduct{
		{"Pruning Shears", "Bypass pruner", "Fiskars", 27.50},
		{"Garden Hose", "50ft expandable", "Gardena", 44.00},
	}},
}

// Seed 写入演示分类、商品与 sales 条随机销售
//
// 已有分类时跳过。随机源固定，同样的 now 得到同样的数据；销售日期分布在 now 之前的 12 个月内。
func (s *Store) Seed(ctx context.Context, sales int) error {
	cats, _, _, err := s.Counts(ctx)
	if err != nil || cats > 0 {
		return err
	}

	var productIDs []int
	for _, group := range seedCatalog {
		cat, err := s.CreateCategory(ctx, group.category)
		if err != nil {
			return err
		}
		for _, sp := range group.products {
			p, err := s.CreateProduct(ctx, NewProduct{
				Name: sp.name, Description: sp.description, Price: sp.price,
				CategoryID: cat.ID, Brand: sp.brand,
			})
			if err != nil {
				return err
			}
			productIDs = append(productIDs, p.ID)
		}
	}

	rng := rand.New(rand.NewPCG(2024, 11))
	now := s.now()
	for range sales {
		id := productIDs[rng.IntN(len(productIDs))]
		at := now.AddDate(0, -rng.IntN(12), -rng.IntN(28)).Add(-time.Duration(rng.IntN(24)) * time.Hour)
		if _, err := s.CreateSale(ctx, id, 1+rng.IntN(5), at); err != nil {
			return err
		}
	}

	logging.ComponentLogger("devserver").Info(ctx, "seeded database",
		logging.Int("categories", len(seedCatalog)),
		logging.Int("products", len(productIDs)),
		logging.Int("sales", sales))
	return nil
}
