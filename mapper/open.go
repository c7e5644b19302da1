package mapper

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for postgres URLs
	_ "github.com/mattn/go-sqlite3"    // database/sql driver for sqlite paths
)

// Open opens a database handle for a connection URL, picking the driver
// from the scheme: postgres:// and postgresql:// go through pgx, anything
// else is treated as a sqlite database path (":memory:" included).
func Open(url string) (*sql.DB, error) {
	if url == "" {
		return nil, fmt.Errorf("mapper: database URL is empty")
	}

	driver := "sqlite3"
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver = "pgx"
	}

	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, fmt.Errorf("mapper: opening %s database: %w", driver, err)
	}
	return db, nil
}
