package basic

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "invdash/storage/database"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), core.DBConfig{DSN: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.ExecScript(context.Background(),
		`CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)`))
	return db
}

func TestDB_ExecAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b", "c"} {
		_, err := db.Exec(ctx, "INSERT INTO items (name) VALUES (?)", name)
		require.NoError(t, err)
	}

	rows, err := db.Query(ctx, "SELECT name FROM items ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		require.NoError(t, rows.Scan(&n))
		names = append(names, n)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b", "c"}, names)

	var count int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 3, count)
	assert.Equal(t, "sqlite", db.Driver())
}

func TestWithTx(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := core.WithTx(ctx, db, func(tx core.ITransaction) error {
		_, err := tx.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "kept")
		return err
	})
	require.NoError(t, err)

	boom := stderrors.New("boom")
	err = core.WithTx(ctx, db, func(tx core.ITransaction) error {
		if _, err := tx.Exec(ctx, "INSERT INTO items (name) VALUES (?)", "dropped"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.QueryRow(ctx, "SELECT COUNT(*) FROM items").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTx_NoNesting(t *testing.T) {
	db := newTestDB(t)
	tx, err := db.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.Begin(context.Background())
	assert.Error(t, err)
}

func TestSelectBuilder(t *testing.T) {
	b := NewSelect().
		Select("p.id", "p.name").
		From("products p").
		Join("JOIN categories c ON c.id = p.category_id").
		Where("p.name LIKE ?", "%phone%").
		Where("c.name = ?", "Electronics").
		OrderBy("p.id", true).
		Limit(10).
		Offset(20)

	q, args := b.Build()
	assert.Equal(t, "SELECT p.id, p.name FROM products p JOIN categories c ON c.id = p.category_id "+
		"WHERE p.name LIKE ? AND c.name = ? ORDER BY p.id DESC LIMIT 10 OFFSET 20", q)
	assert.Equal(t, []any{"%phone%", "Electronics"}, args)

	q, args = b.Count()
	assert.Equal(t, "SELECT COUNT(*) FROM products p JOIN categories c ON c.id = p.category_id "+
		"WHERE p.name LIKE ? AND c.name = ?", q)
	assert.Len(t, args, 2)

	q, _ = NewSelect().From("items").Offset(5).Build()
	assert.Equal(t, "SELECT * FROM items LIMIT -1 OFFSET 5", q)
}
