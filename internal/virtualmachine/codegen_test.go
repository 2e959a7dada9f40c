package virtualmachine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/ridgedb/internal/metadata"
	"github.com/joeandaverde/ridgedb/internal/storage"
	"github.com/joeandaverde/ridgedb/tsql/ast"
	"github.com/joeandaverde/ridgedb/tsql/parser"
)

// jumpOps are the ops that contain a jump destination in P2
var jumpOps = map[Op]bool{
	OpEq: true, OpNe: true,
	OpLt: true, OpLe: true,
	OpGt: true, OpGe: true,
	OpRewind: true, OpNext: true,
}

var testTableDefs = map[string]*metadata.TableDefinition{
	"foo": {
		Name: "foo",
		Columns: []*metadata.ColumnDefinition{
			{Name: "id", Offset: 0, Type: storage.Integer},
			{Name: "email", Offset: 1, Type: storage.Text},
			{Name: "state", Offset: 2, Type: storage.Text},
		},
		RootPage: 1337,
	},
}

func TestSelectInstructions(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("SELECT * FROM foo")
	r.NoError(err)

	instructions, err := SelectInstructions(testTableDefs, stmt.(*ast.SelectStatement))
	r.NoError(err)
	r.NotEmpty(instructions)
	result := Instructions(instructions).String()
	r.NotEmpty(result)

	groupedByOp := groupInstructions(instructions)

	// selecting all columns
	r.Len(groupedByOp[OpColumn], len(testTableDefs["foo"].Columns))

	// next picks up at the first column load
	r.Equal(groupedByOp[OpNext][0].ixn.P2, groupedByOp[OpColumn][0].addr)

	// OpenRead addresses the root page indirectly through a register,
	// loaded by a preceding OpInteger - never as a P2 literal.
	openBtree := groupedByOp[OpOpenRead]
	r.Len(openBtree, 1)
	r.Equal(len(testTableDefs["foo"].Columns), openBtree[0].ixn.P3)
	r.Equal("foo", openBtree[0].ixn.P4)

	pageLoad := groupedByOp[OpInteger][0]
	r.Equal(testTableDefs["foo"].RootPage, pageLoad.ixn.P1)
	r.Equal(openBtree[0].ixn.P2, pageLoad.ixn.P2)

	r.Equal(OpHalt, instructions[len(instructions)-1].Op)

	assertJumpsValid(instructions, t)
}

func TestSelectInstructions_SingleConditionWhereClause(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("SELECT * FROM foo WHERE email = 'a'")
	r.NoError(err)

	instructions, err := SelectInstructions(testTableDefs, stmt.(*ast.SelectStatement))
	r.NoError(err)
	r.NotEmpty(instructions)

	// "=" compiles to the negated Ne, jumping past the projection block.
	grouped := groupInstructions(instructions)
	r.Len(grouped[OpNe], 1)

	assertJumpsValid(instructions, t)
}

func TestSelectInstructions_ComparisonOperators(t *testing.T) {
	cases := []struct {
		sql string
		op  Op
	}{
		{"SELECT * FROM foo WHERE email != 'a'", OpEq},
		{"SELECT * FROM foo WHERE id < 5", OpGe},
		{"SELECT * FROM foo WHERE id <= 5", OpGt},
		{"SELECT * FROM foo WHERE id > 5", OpLe},
		{"SELECT * FROM foo WHERE id >= 5", OpLt},
		{"SELECT * FROM foo WHERE 5 < id", OpLe},
	}

	for _, c := range cases {
		t.Run(c.sql, func(t *testing.T) {
			r := require.New(t)
			stmt, err := parser.ParseStatement(c.sql)
			r.NoError(err)

			instructions, err := SelectInstructions(testTableDefs, stmt.(*ast.SelectStatement))
			r.NoError(err)
			r.NotEmpty(instructions)

			grouped := groupInstructions(instructions)
			r.Len(grouped[c.op], 1, "expected exactly one %v", c.op)

			assertJumpsValid(instructions, t)
		})
	}
}

func TestCreateTableInstructions(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("CREATE TABLE company (id int PRIMARY KEY, name text)")
	r.NoError(err)

	instructions, err := CreateTableInstructions(stmt.(*ast.CreateTableStatement))
	r.NoError(err)
	r.NotEmpty(instructions)
	r.Equal(OpHalt, instructions[len(instructions)-1].Op)

	grouped := groupInstructions(instructions)
	r.Len(grouped[OpCreateTable], 1)
	r.Len(grouped[OpMakeRecord], 1)
	r.Equal(5, grouped[OpMakeRecord][0].ixn.P2)
}

func TestInsertInstructions_PrimaryKeyOmittedFromRecord(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement("CREATE TABLE foo (id int PRIMARY KEY, email text)")
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	stmt, err := parser.ParseStatement("INSERT INTO foo (id, email) VALUES (1, 'a@b.com')")
	r.NoError(err)

	instructions, err := InsertInstructions(p, stmt.(*ast.InsertStatement))
	r.NoError(err)
	r.NotEmpty(instructions)

	grouped := groupInstructions(instructions)
	r.Len(grouped[OpNull], 1, "primary key column's record slot must be NULL")
	r.Len(grouped[OpInsert], 1)
}

func TestInsertInstructions_ValueColumnCountMismatchIsInvalidSQL(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement("CREATE TABLE foo (id int PRIMARY KEY, email text)")
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	stmt, err := parser.ParseStatement("INSERT INTO foo (id, email) VALUES (1)")
	r.NoError(err)

	_, err = InsertInstructions(p, stmt.(*ast.InsertStatement))
	r.Error(err)
}

func TestInsertInstructions_UnknownColumnIsInvalidSQL(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement("CREATE TABLE foo (id int PRIMARY KEY, email text)")
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	stmt, err := parser.ParseStatement("INSERT INTO foo (id, nickname) VALUES (1, 'bob')")
	r.NoError(err)

	_, err = InsertInstructions(p, stmt.(*ast.InsertStatement))
	r.Error(err)
}

func TestSelectInstructions_UnknownColumnIsInvalidSQL(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("SELECT nickname FROM foo")
	r.NoError(err)

	_, err = SelectInstructions(testTableDefs, stmt.(*ast.SelectStatement))
	r.Error(err)
}

func TestSelectInstructions_UnknownTableIsInvalidSQL(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("SELECT * FROM bar")
	r.NoError(err)

	_, err = SelectInstructions(testTableDefs, stmt.(*ast.SelectStatement))
	r.Error(err)
}

func TestCreateIndexInstructions_UnknownColumnIsInvalidSQL(t *testing.T) {
	r := require.New(t)

	stmt, err := parser.ParseStatement("CREATE INDEX idx_nickname ON foo (nickname)")
	r.NoError(err)

	_, err = CreateIndexInstructions(testTableDefs["foo"], stmt.(*ast.CreateIndexStatement))
	r.Error(err)
}

func TestCreateIndexInstructions(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement("CREATE TABLE foo (id int PRIMARY KEY, email text, state text)")
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	for _, sql := range []string{
		`INSERT INTO foo (id, email, state) VALUES (1, 'aa', 'ny')`,
		`INSERT INTO foo (id, email, state) VALUES (2, 'bb', 'ca')`,
	} {
		insertStmt, err := parser.ParseStatement(sql)
		r.NoError(err)
		runProgram(t, p, mustInsert(t, p, insertStmt.(*ast.InsertStatement)))
	}

	table, err := metadata.GetTableDefinition(p, "foo")
	r.NoError(err)

	indexStmt, err := parser.ParseStatement("CREATE INDEX idx_email ON foo (email)")
	r.NoError(err)

	instructions, err := CreateIndexInstructions(table, indexStmt.(*ast.CreateIndexStatement))
	r.NoError(err)
	r.NotEmpty(instructions)

	grouped := groupInstructions(instructions)
	r.Len(grouped[OpCreateIndex], 1)
	r.Len(grouped[OpIdxInsert], 1, "one index-leaf cell inserted per scanned table row")

	runProgram(t, p, instructions)

	updated, err := metadata.GetTableDefinition(p, "foo")
	r.NoError(err)
	r.Contains(updated.Indexes, "email")
}

// TestSelectInstructions_IndexDrivenLookup mirrors the documented scenario
// of an equality WHERE clause against an indexed column compiling to an
// index lookup instead of a full table scan.
func TestSelectInstructions_IndexDrivenLookup(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement("CREATE TABLE foo (id int PRIMARY KEY, name text)")
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	for _, sql := range []string{
		`INSERT INTO foo (id, name) VALUES (1, 'aa')`,
		`INSERT INTO foo (id, name) VALUES (2, 'bb')`,
	} {
		insertStmt, err := parser.ParseStatement(sql)
		r.NoError(err)
		runProgram(t, p, mustInsert(t, p, insertStmt.(*ast.InsertStatement)))
	}

	table, err := metadata.GetTableDefinition(p, "foo")
	r.NoError(err)

	nameIndexStmt, err := parser.ParseStatement("CREATE INDEX idx_name ON foo (name)")
	r.NoError(err)
	createIndexInstrs, err := CreateIndexInstructions(table, nameIndexStmt.(*ast.CreateIndexStatement))
	r.NoError(err)
	runProgram(t, p, createIndexInstrs)

	table, err = metadata.GetTableDefinition(p, "foo")
	r.NoError(err)
	tableLookup := map[string]*metadata.TableDefinition{table.Name: table}

	selectStmt, err := parser.ParseStatement(`SELECT name FROM foo WHERE id = 2`)
	r.NoError(err)
	// id has no secondary index (it's the primary key); this still compiles
	// and runs via the full-scan path.
	rows := runProgram(t, p, mustSelect(t, tableLookup, selectStmt.(*ast.SelectStatement)))
	r.Len(rows, 1)
	r.Equal("bb", rows[0][0])

	byNameStmt, err := parser.ParseStatement(`SELECT name FROM foo WHERE name = 'bb'`)
	r.NoError(err)
	instructions, err := SelectInstructions(tableLookup, byNameStmt.(*ast.SelectStatement))
	r.NoError(err)
	grouped := groupInstructions(instructions)
	r.Len(grouped[OpSeekGe], 1, "equality on an indexed column compiles to an index seek")
	r.Len(grouped[OpIdxPKey], 1)

	rows = runProgram(t, p, instructions)
	r.Len(rows, 1)
	r.Equal("bb", rows[0][0])
}

type groupItem struct {
	addr int
	ixn  *Instruction
}

func groupInstructions(instructions Instructions) map[Op][]groupItem {
	grouped := make(map[Op][]groupItem)
	for i, x := range instructions {
		item := groupItem{ixn: x, addr: i}
		if _, ok := grouped[x.Op]; ok {
			grouped[x.Op] = append(grouped[x.Op], item)
		} else {
			grouped[x.Op] = []groupItem{item}
		}
	}
	return grouped
}

func assertJumpsValid(instructions Instructions, t *testing.T) {
	assert := require.New(t)
	for i, x := range instructions {
		if _, ok := jumpOps[x.Op]; !ok {
			continue
		}
		jumpAddr := x.P2
		assert.NotZero(jumpAddr)
		assert.NotEqual(jumpAddr, i)
		assert.Less(jumpAddr, len(instructions))
	}
}
