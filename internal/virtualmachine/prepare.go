package virtualmachine

import (
	"fmt"

	"github.com/joeandaverde/ridgedb/internal/metadata"
	"github.com/joeandaverde/ridgedb/internal/pager"
	"github.com/joeandaverde/ridgedb/tsql/ast"
)

// PreparedStatement is a compiled statement ready to be stepped by a
// Program. Explain, when set, makes the program yield its own compiled
// instructions as rows instead of executing them.
type PreparedStatement struct {
	Statement    ast.Statement
	Columns      []string
	Instructions []*Instruction
	Explain      bool
}

// Prepare compiles a statement into a set of instructions to run in the database virtual machine.
func Prepare(stmt ast.Statement, pager pager.Pager) (*PreparedStatement, error) {
	preparedStatement := &PreparedStatement{
		Statement: stmt,
	}

	var err error
	switch s := stmt.(type) {
	case *ast.CreateTableStatement:
		preparedStatement.Instructions, err = CreateTableInstructions(s)
	case *ast.CreateIndexStatement:
		table, tErr := metadata.GetTableDefinition(pager, s.TableName)
		if tErr != nil {
			return nil, tErr
		}
		preparedStatement.Instructions, err = CreateIndexInstructions(table, s)
	case *ast.InsertStatement:
		preparedStatement.Instructions, err = InsertInstructions(pager, s)
	case *ast.SelectStatement:
		table, tErr := metadata.GetTableDefinition(pager, s.From[0].Name)
		if tErr != nil {
			return nil, tErr
		}
		tableLookup := make(map[string]*metadata.TableDefinition)
		tableLookup[table.Name] = table

		preparedStatement.Columns = s.Columns
		preparedStatement.Instructions, err = SelectInstructions(tableLookup, s)
	default:
		return nil, fmt.Errorf("unexpected statement type")
	}
	if err != nil {
		return nil, err
	}

	return preparedStatement, nil
}

// PrepareExplain compiles stmt the same way Prepare does, but marks the
// result so the resulting Program yields its own compiled instructions
// (addr, opcode, p1, p2, p3, p4) instead of executing them.
func PrepareExplain(stmt ast.Statement, pager pager.Pager) (*PreparedStatement, error) {
	ps, err := Prepare(stmt, pager)
	if err != nil {
		return nil, err
	}
	ps.Explain = true
	ps.Columns = []string{"addr", "opcode", "p1", "p2", "p3", "p4"}
	return ps, nil
}
