package devserver

// 时间统一以 UTC 文本存储，格式见 timeLayout
const timeLayout = "2006-01-02 15:04:05"

var schema = []string{
	`PRAGMA foreign_keys = ON`,
	`CREATE TABLE IF NOT EXISTS categories (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT NOT NULL,
		description TEXT,
		price       REAL NOT NULL,
		category_id INTEGER NOT NULL REFERENCES categories(id),
		brand       TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category_id)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id  INTEGER NOT NULL REFERENCES products(id),
		quantity    INTEGER NOT NULL,
		total_price REAL NOT NULL,
		date        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_product ON sales(product_id)`,
}
