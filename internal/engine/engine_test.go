package engine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/ridgedb/internal/engine"
)

func TestOpen_MemoryDatabase(t *testing.T) {
	r := require.New(t)
	db, err := engine.Open(&engine.Config{})
	r.NoError(err)
	r.False(db.Exists("company"))
}

func TestRun_CreateInsertSelect(t *testing.T) {
	r := require.New(t)
	db, err := engine.Open(&engine.Config{})
	r.NoError(err)

	_, _, err = db.Run("CREATE TABLE company (id int PRIMARY KEY, name text)")
	r.NoError(err)
	r.True(db.Exists("company"))

	_, _, err = db.Run("INSERT INTO company (id, name) VALUES (1, 'hashicorp')")
	r.NoError(err)

	rows, cols, err := db.Run("SELECT * FROM company")
	r.NoError(err)
	r.Equal([]string{"*"}, cols)
	r.Len(rows, 1)
	r.EqualValues(1, rows[0].Data[0])
	r.Equal("hashicorp", rows[0].Data[1])
}

func TestPrepareExplain_YieldsCompiledProgram(t *testing.T) {
	r := require.New(t)
	db, err := engine.Open(&engine.Config{})
	r.NoError(err)

	_, _, err = db.Run("CREATE TABLE company (id int PRIMARY KEY, name text)")
	r.NoError(err)

	stmt, err := db.PrepareExplain("SELECT * FROM company")
	r.NoError(err)
	r.Equal([]string{"addr", "opcode", "p1", "p2", "p3", "p4"}, stmt.Columns())

	status, err := stmt.Step()
	r.NoError(err)
	r.Equal(engine.StatusRow, status)
	r.Len(stmt.Row(), 6)
}

func TestFinalize_ReloadsDictionaryAfterSchemaMutation(t *testing.T) {
	r := require.New(t)
	db, err := engine.Open(&engine.Config{})
	r.NoError(err)

	stmt, err := db.Prepare("CREATE TABLE widgets (id int PRIMARY KEY)")
	r.NoError(err)
	r.False(db.Exists("widgets"))

	r.NoError(db.Finalize(stmt))
	r.True(db.Exists("widgets"))
}
