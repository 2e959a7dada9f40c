package virtualmachine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joeandaverde/ridgedb/internal/metadata"
	"github.com/joeandaverde/ridgedb/internal/pager"
	"github.com/joeandaverde/ridgedb/internal/storage"
	"github.com/joeandaverde/ridgedb/tsql/ast"
	"github.com/joeandaverde/ridgedb/tsql/parser"
)

// newTestPager builds a fresh in-memory pager with an empty page-1 schema
// table, ready for CreateTableInstructions/InsertInstructions/SelectInstructions.
func newTestPager(t *testing.T) pager.Pager {
	t.Helper()
	mem := storage.NewMemoryFile(4096)
	require.NoError(t, pager.Initialize(mem))
	return pager.NewPager(mem)
}

// runProgram drives a freshly compiled instruction stream to completion
// against p, collecting every result row along the way.
func runProgram(t *testing.T, p pager.Pager, instructions []*Instruction) [][]interface{} {
	t.Helper()
	require.NotEmpty(t, instructions)

	ps := &PreparedStatement{Instructions: instructions}
	program := NewProgram(&Flags{AutoCommit: true}, p, ps)

	var rows [][]interface{}
	for {
		status, err := program.Step()
		require.NoError(t, err)
		if status == StatusDone {
			break
		}
		rows = append(rows, append([]interface{}{}, program.Row()...))
	}

	require.NoError(t, p.Flush())
	return rows
}

func mustCreateTable(t *testing.T, stmt *ast.CreateTableStatement) []*Instruction {
	t.Helper()
	instructions, err := CreateTableInstructions(stmt)
	require.NoError(t, err)
	return instructions
}

func mustInsert(t *testing.T, p pager.Pager, stmt *ast.InsertStatement) []*Instruction {
	t.Helper()
	instructions, err := InsertInstructions(p, stmt)
	require.NoError(t, err)
	return instructions
}

func mustSelect(t *testing.T, tableDefs map[string]*metadata.TableDefinition, stmt *ast.SelectStatement) []*Instruction {
	t.Helper()
	instructions, err := SelectInstructions(tableDefs, stmt)
	require.NoError(t, err)
	return instructions
}

func TestInsertInstructions_MultiRow(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement(`CREATE TABLE company (company_id int PRIMARY KEY, company_name text)`)
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	companies := []struct {
		id   int
		name string
	}{
		{1, "Netflix"},
		{2, "Facebook"},
		{3, "Apple"},
		{4, "Google"},
	}

	for _, c := range companies {
		sql := fmt.Sprintf(`INSERT INTO company (company_id, company_name) VALUES (%d, '%s')`, c.id, c.name)
		insertStmt, err := parser.ParseStatement(sql)
		r.NoError(err)
		runProgram(t, p, mustInsert(t, p, insertStmt.(*ast.InsertStatement)))
	}

	table, err := metadata.GetTableDefinition(p, "company")
	r.NoError(err)
	tableLookup := map[string]*metadata.TableDefinition{table.Name: table}

	selectStmt, err := parser.ParseStatement(`SELECT * FROM company`)
	r.NoError(err)

	rows := runProgram(t, p, mustSelect(t, tableLookup, selectStmt.(*ast.SelectStatement)))
	r.Len(rows, len(companies))

	seen := make(map[int]string)
	for _, row := range rows {
		seen[row[0].(int)] = row[1].(string)
	}
	for _, c := range companies {
		r.Equal(c.name, seen[c.id])
	}
}

func TestInsertInstructions_SelectWithWhere(t *testing.T) {
	r := require.New(t)
	p := newTestPager(t)

	createStmt, err := parser.ParseStatement(`CREATE TABLE company (company_id int PRIMARY KEY, company_name text)`)
	r.NoError(err)
	runProgram(t, p, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	for _, sql := range []string{
		`INSERT INTO company (company_id, company_name) VALUES (1, 'hashicorp')`,
		`INSERT INTO company (company_id, company_name) VALUES (2, 'smrxt')`,
	} {
		insertStmt, err := parser.ParseStatement(sql)
		r.NoError(err)
		runProgram(t, p, mustInsert(t, p, insertStmt.(*ast.InsertStatement)))
	}

	table, err := metadata.GetTableDefinition(p, "company")
	r.NoError(err)
	tableLookup := map[string]*metadata.TableDefinition{table.Name: table}

	selectStmt, err := parser.ParseStatement(`SELECT * FROM company WHERE company_name = 'smrxt'`)
	r.NoError(err)

	rows := runProgram(t, p, mustSelect(t, tableLookup, selectStmt.(*ast.SelectStatement)))
	r.Len(rows, 1)
	r.EqualValues(2, rows[0][0])
	r.Equal("smrxt", rows[0][1])
}

// TestInsertInstructions_RowIDDerivedFromTree confirms row ids advance
// correctly across independently opened pager handles onto the same
// database, now that they're derived from the table's own max key
// instead of a process-global counter.
func TestInsertInstructions_RowIDDerivedFromTree(t *testing.T) {
	r := require.New(t)
	mem := storage.NewMemoryFile(4096)
	r.NoError(pager.Initialize(mem))

	p1 := pager.NewPager(mem)
	createStmt, err := parser.ParseStatement(`CREATE TABLE widget (id int PRIMARY KEY, name text)`)
	r.NoError(err)
	runProgram(t, p1, mustCreateTable(t, createStmt.(*ast.CreateTableStatement)))

	insertStmt, err := parser.ParseStatement(`INSERT INTO widget (name) VALUES ('first')`)
	r.NoError(err)
	runProgram(t, p1, mustInsert(t, p1, insertStmt.(*ast.InsertStatement)))

	// A second, independently opened pager handle onto the same file must
	// continue row ids from where the first handle left off.
	p2 := pager.NewPager(mem)
	insertStmt2, err := parser.ParseStatement(`INSERT INTO widget (name) VALUES ('second')`)
	r.NoError(err)
	runProgram(t, p2, mustInsert(t, p2, insertStmt2.(*ast.InsertStatement)))

	table, err := metadata.GetTableDefinition(p2, "widget")
	r.NoError(err)
	tableLookup := map[string]*metadata.TableDefinition{table.Name: table}
	selectStmt, err := parser.ParseStatement(`SELECT * FROM widget`)
	r.NoError(err)

	rows := runProgram(t, p2, mustSelect(t, tableLookup, selectStmt.(*ast.SelectStatement)))
	r.Len(rows, 2)
	r.EqualValues(1, rows[0][0])
	r.EqualValues(2, rows[1][0])
}
