package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Embedded(t *testing.T) {
	pg, err := load(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, pg)
	assert.Equal(t, "001_curves", pg[0].Version)
	assert.Contains(t, pg[0].SQL, "CREATE TABLE IF NOT EXISTS curves")

	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	assert.Contains(t, ch[0].SQL, "curve_builds")
}

func TestLoad_OrdersAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/002_b.sql":   {Data: []byte("SELECT 2;")},
		"sql/001_a.sql":   {Data: []byte("SELECT 1;")},
		"sql/003_c.sql":   {Data: []byte("   \n")},
		"sql/README.md":   {Data: []byte("notes")},
		"sql/nested/x.sq": {Data: []byte("x")},
	}

	got, err := load(fsys, "sql")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a", got[0].Version)
	assert.Equal(t, "002_b", got[1].Version)
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: "001"}, {Version: "002"}, {Version: "003"}}
	got := pending(all, map[string]bool{"001": true, "003": true})
	require.Len(t, got, 1)
	assert.Equal(t, "002", got[0].Version)
}

func TestSplitStatements(t *testing.T) {
	script := `-- header; with semicolon
CREATE TABLE a (x String) ENGINE = Memory;

-- second
CREATE TABLE b (s String DEFAULT 'it''s') ENGINE = Memory;
`
	stmts, err := splitStatements(script)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String) ENGINE = Memory", stmts[0])
	assert.Contains(t, stmts[1], "'it''s'")

	_, err = splitStatements("SELECT 'a;b';")
	assert.Error(t, err)
}

func TestSplitStatements_EmbeddedClickhouse(t *testing.T) {
	ch, err := load(ClickhouseFS, "clickhouse")
	require.NoError(t, err)

	stmts, err := splitStatements(ch[0].SQL)
	require.NoError(t, err)
	assert.Len(t, stmts, 3)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://default:@localhost:9000/fairrate")
	require.NoError(t, err)
	assert.Equal(t, "fairrate", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}
