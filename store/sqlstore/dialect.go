package sqlstore

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect 描述不同数据库之间的差异：驱动名、占位符与自增主键写法。
type Dialect struct {
	Name     string
	Driver   string
	serialPK string
	dollar   bool
}

var (
	SQLite   = Dialect{Name: "sqlite", Driver: "sqlite", serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT"}
	Postgres = Dialect{Name: "postgres", Driver: "pgx", serialPK: "BIGSERIAL PRIMARY KEY", dollar: true}
)

// DialectFor 按名称查找方言，支持 sqlite、postgres（别名 pgx、postgresql）。
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return Dialect{}, fmt.Errorf("sqlstore: 不支持的数据库类型 %q", name)
}

// rebind 将 ? 占位符改写为方言的写法。
func (d Dialect) rebind(query string) string {
	if !d.dollar {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS samples (
		qr_code_key TEXT PRIMARY KEY,
		audit_id TEXT NOT NULL,
		audit_number BIGINT NOT NULL,
		team TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS samples_team_idx ON samples (team)`,
		`CREATE TABLE IF NOT EXISTS layouts (
		id ` + d.serialPK + `,
		team TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS layouts_team_idx ON layouts (team, created_at)`,
		`CREATE TABLE IF NOT EXISTS deleted (
		qr_code_key TEXT PRIMARY KEY,
		team TEXT NOT NULL,
		reason TEXT NOT NULL,
		deleted_at BIGINT NOT NULL
	)`,
	}
}
