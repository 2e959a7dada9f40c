package virtualmachine

import (
	"fmt"
	"strings"

	"github.com/joeandaverde/ridgedb/internal/metadata"
	"github.com/joeandaverde/ridgedb/internal/pager"
	"github.com/joeandaverde/ridgedb/internal/storage"
	"github.com/joeandaverde/ridgedb/tsql/ast"
	"github.com/joeandaverde/ridgedb/tsql/lexer"
)

type program struct {
	instructions []*Instruction
	regPool      map[int]struct{}
	labelRefs    map[int]int

	// err sticks once set: every compiler entry point checks it after
	// code generation completes rather than threading an error return
	// through every helper, mirroring Program's own error convention.
	err error
}

// fail records the first compile error encountered. Later calls are
// no-ops so the original failure is always the one returned.
func (p *program) fail(format string, args ...interface{}) {
	if p.err == nil {
		p.err = fmt.Errorf(format, args...)
	}
}

type Instructions []*Instruction

func (i Instructions) String() string {
	var sb strings.Builder
	for addr, x := range i {
		sb.WriteString(fmt.Sprintf("| %-4d | %s |\n", addr, x.String()))
	}
	return sb.String()
}

func initProgram() *program {
	return &program{
		regPool:   make(map[int]struct{}),
		labelRefs: make(map[int]int),
	}
}

// Op0 adds an instruction that takes no params
func (p *program) Op0(op Op) int {
	p.instructions = append(p.instructions, &Instruction{Op: op, P1: 0, P2: 0, P3: 0, P4: nil})
	return len(p.instructions) - 1
}

// Op1 adds an instruction that takes 1 param
func (p *program) Op1(op Op, p1 int) int {
	p.instructions = append(p.instructions, &Instruction{Op: op, P1: p1, P2: 0, P3: 0, P4: nil})
	return len(p.instructions) - 1
}

// Op2 adds an instruction that takes 2 params
func (p *program) Op2(op Op, p1, p2 int) int {
	p.instructions = append(p.instructions, &Instruction{Op: op, P1: p1, P2: p2, P3: 0, P4: nil})
	return len(p.instructions) - 1
}

// Op3 adds an instruction that takes 3 params
func (p *program) Op3(op Op, p1, p2, p3 int) int {
	p.instructions = append(p.instructions, &Instruction{Op: op, P1: p1, P2: p2, P3: p3, P4: nil})
	return len(p.instructions) - 1
}

// Op4 adds an instruction that takes 4 params
func (p *program) Op4(op Op, p1, p2, p3 int, p4 interface{}) int {
	p.instructions = append(p.instructions, &Instruction{Op: op, P1: p1, P2: p2, P3: p3, P4: p4})
	return len(p.instructions) - 1
}

func (p *program) Comment(s string) {
	p.instructions[len(p.instructions)-1].Comment = s
}

func (p *program) OpString(reg int, s string) int {
	return p.Op4(OpString, len(s), reg, 0, s)
}

func (p *program) OpInt(reg int, value int) int {
	return p.Op2(OpInteger, value, reg)
}

func (p *program) OpNull(reg int) int {
	return p.Op2(OpNull, 0, reg)
}

func (p *program) OpHalt() int {
	return p.Op0(OpHalt)
}

// OpenCursor loads rootPage into a fresh register and opens a cursor
// over it - OpenRead/OpenWrite both address the root page indirectly
// through a register, never as a literal.
func (p *program) OpenCursor(op Op, cursor, rootPage, ncols int, name string) {
	pageReg := p.RegAlloc()
	p.OpInt(pageReg, rootPage)
	p.Op4(op, cursor, pageReg, ncols, name)
	p.RegRelease(pageReg)
}

func (p *program) MakeLabel() int {
	labelRef := -len(p.labelRefs) - 1
	p.labelRefs[labelRef] = labelRef
	return labelRef
}

func (p *program) EmitLabel(labelRef int) {
	p.labelRefs[labelRef] = len(p.instructions)
}

func (p *program) RegAlloc() int {
	for i := 0; i < 100; i++ {
		if _, ok := p.regPool[i]; !ok {
			p.regPool[i] = struct{}{}
			return i
		}
	}

	p.fail("out of registers")
	return 0
}

func (p *program) RegAllocN(num int) int {
	remaining := num
	startReg := 0
	for ; startReg < 100; startReg++ {
		_, ok := p.regPool[startReg]
		// if the reg is taken, reset our count.
		if ok {
			remaining = num
		} else {
			remaining--
		}

		// If we got all contiguous regs, done.
		if remaining == 0 {
			break
		}
	}

	if remaining != 0 {
		p.fail("out of registers")
		return 0
	}

	for r := startReg - num + 1; r <= startReg; r++ {
		p.regPool[r] = struct{}{}
	}

	return startReg - num + 1
}

func (p *program) RegRelease(r int) {
	if _, ok := p.regPool[r]; ok {
		delete(p.regPool, r)
		return
	}
	panic("attempt to release a register that wasnt allocated")
}

func (p *program) Finalize() {
	for _, instruction := range p.instructions {
		// If P2 is a negative number it is a reference to a labeled instruction
		if instruction.P2 < 0 {
			instruction.P2 = p.labelRefs[instruction.P2]
		}
		// The seek ops carry their jump address in P3 instead.
		switch instruction.Op {
		case OpSeek, OpSeekGt, OpSeekGe, OpSeekLt, OpSeekLe:
			if instruction.P3 < 0 {
				instruction.P3 = p.labelRefs[instruction.P3]
			}
		}
	}
}

// CreateTableInstructions generates the program that records a new
// table's schema row in the page-1 schema b-tree and allocates its root
// page.
func CreateTableInstructions(stmt *ast.CreateTableStatement) ([]*Instruction, error) {
	p := initProgram()

	// The schema table is always rooted at page 1.
	const schemaRoot = 1
	cursor := 0
	p.OpenCursor(OpOpenWrite, cursor, schemaRoot, 5, ".schema")

	// Master table entry columns: type, name, tbl_name, rootpage, sql
	typeReg := p.RegAlloc()
	nameReg := p.RegAlloc()
	tblNameReg := p.RegAlloc()
	rootPageReg := p.RegAlloc()
	sqlReg := p.RegAlloc()

	// Allocate the new table's root page and store it in rootPageReg
	p.Op1(OpCreateTable, rootPageReg)

	p.OpString(typeReg, "table")
	p.OpString(nameReg, stmt.TableName)
	p.OpString(tblNameReg, stmt.TableName)
	p.OpString(sqlReg, stmt.RawText)

	recordReg := p.RegAlloc()
	p.Op3(OpMakeRecord, typeReg, 5, recordReg)

	rowIDReg := p.RegAlloc()
	p.Op2(OpRowID, cursor, rowIDReg)

	p.Op3(OpInsert, cursor, recordReg, rowIDReg)
	p.Op1(OpClose, cursor)
	p.OpHalt()

	if p.err != nil {
		return nil, p.err
	}
	return p.instructions, nil
}

// CreateIndexInstructions generates the program that builds an index
// b-tree over an existing table's column by scanning the table once and
// inserting an index-leaf cell per row, then appends the index's own
// schema row.
func CreateIndexInstructions(table *metadata.TableDefinition, stmt *ast.CreateIndexStatement) ([]*Instruction, error) {
	var col *metadata.ColumnDefinition
	for _, c := range table.Columns {
		if c.Name == stmt.ColumnName {
			col = c
			break
		}
	}
	if col == nil {
		return nil, fmt.Errorf("invalid-sql: unknown column %q on table %q", stmt.ColumnName, table.Name)
	}
	if col.Type != storage.Integer {
		return nil, fmt.Errorf("invalid-sql: indexed column %q on table %q must be an integer column", stmt.ColumnName, table.Name)
	}

	p := initProgram()

	const schemaRoot = 1
	tableCursor := 0
	indexCursor := 1
	schemaCursor := 2

	p.OpenCursor(OpOpenRead, tableCursor, table.RootPage, len(table.Columns), table.Name)

	indexRootReg := p.RegAlloc()
	p.Op1(OpCreateIndex, indexRootReg)
	p.Op4(OpOpenWrite, indexCursor, indexRootReg, 0, stmt.IndexName)

	haltLabel := p.MakeLabel()
	loopLabel := p.MakeLabel()

	p.Op2(OpRewind, tableCursor, haltLabel)

	p.EmitLabel(loopLabel)
	pkeyReg := p.RegAlloc()
	valReg := p.RegAlloc()
	p.Op2(OpKey, tableCursor, pkeyReg)
	if col.PrimaryKey {
		p.Op2(OpKey, tableCursor, valReg)
	} else {
		p.Op3(OpColumn, tableCursor, col.Offset, valReg)
	}
	p.Op3(OpIdxInsert, indexCursor, valReg, pkeyReg)
	p.RegRelease(pkeyReg)
	p.RegRelease(valReg)
	p.Op2(OpNext, tableCursor, loopLabel)

	p.EmitLabel(haltLabel)
	p.Op1(OpClose, tableCursor)
	p.Op1(OpClose, indexCursor)

	// Record the index itself in the schema b-tree.
	p.OpenCursor(OpOpenWrite, schemaCursor, schemaRoot, 5, ".schema")
	typeReg := p.RegAlloc()
	nameReg := p.RegAlloc()
	tblNameReg := p.RegAlloc()
	rootPageReg := p.RegAlloc()
	sqlReg := p.RegAlloc()
	p.OpString(typeReg, "index")
	p.OpString(nameReg, stmt.IndexName)
	p.OpString(tblNameReg, stmt.TableName)
	p.Op2(OpSCopy, indexRootReg, rootPageReg)
	p.OpString(sqlReg, stmt.RawText)
	recordReg := p.RegAlloc()
	p.Op3(OpMakeRecord, typeReg, 5, recordReg)
	rowIDReg := p.RegAlloc()
	p.Op2(OpRowID, schemaCursor, rowIDReg)
	p.Op3(OpInsert, schemaCursor, recordReg, rowIDReg)
	p.Op1(OpClose, schemaCursor)

	p.OpHalt()
	p.Finalize()

	if p.err != nil {
		return nil, p.err
	}
	return p.instructions, nil
}

// InsertInstructions generates the program for a multi-row INSERT.
// Primary-key columns never occupy a record register: their value is
// loaded into the key register instead, and the record carries NULL in
// their place, mirroring the on-disk convention that the key register
// doubles as the row's integer primary key. An omitted primary key (or a
// table without one) takes its key from OpRowID.
func InsertInstructions(pg pager.Pager, stmt *ast.InsertStatement) ([]*Instruction, error) {
	table, err := metadata.GetTableDefinition(pg, stmt.Table)
	if err != nil {
		return nil, err
	}

	columns := stmt.Columns
	if len(columns) == 0 {
		for _, c := range table.Columns {
			columns = append(columns, c.Name)
		}
	}

	colByName := make(map[string]*metadata.ColumnDefinition, len(table.Columns))
	for _, c := range table.Columns {
		colByName[c.Name] = c
	}

	pkeyOffset := -1
	for _, c := range table.Columns {
		if c.PrimaryKey {
			pkeyOffset = c.Offset
		}
	}

	p := initProgram()
	cursor := 0
	p.OpenCursor(OpOpenWrite, cursor, table.RootPage, len(table.Columns), table.Name)

	for _, row := range stmt.Rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("invalid-sql: insert has %d values for %d columns", len(row), len(columns))
		}

		base := p.RegAllocN(len(table.Columns) + 2)
		keyReg := base + len(table.Columns)
		recordReg := keyReg + 1

		haveValue := make([]bool, len(table.Columns))
		for i, colName := range columns {
			col, ok := colByName[colName]
			if !ok {
				return nil, fmt.Errorf("invalid-sql: unknown column %q on table %q", colName, table.Name)
			}
			haveValue[col.Offset] = true

			reg := base + col.Offset
			if col.Offset == pkeyOffset {
				reg = keyReg
			}

			v := Evaluate(row[i], nil)
			p.AddValue(reg, col, v.Value)
		}

		for _, col := range table.Columns {
			if haveValue[col.Offset] {
				continue
			}
			if col.Offset == pkeyOffset {
				p.Op2(OpRowID, cursor, keyReg)
				continue
			}
			p.AddValue(base+col.Offset, col, col.DefaultValue)
		}

		if pkeyOffset >= 0 {
			p.OpNull(base + pkeyOffset)
		} else {
			p.Op2(OpRowID, cursor, keyReg)
		}

		p.Op3(OpMakeRecord, base, len(table.Columns), recordReg)
		p.Op3(OpInsert, cursor, recordReg, keyReg)
		p.RegRelease(recordReg)
	}

	p.Op1(OpClose, cursor)
	p.OpHalt()

	if p.err != nil {
		return nil, p.err
	}
	return p.instructions, nil
}

// AddValue emits the instruction that loads value into reg, validating it
// against column's declared type. A mismatch records a compile error
// through p.fail rather than returning one, matching every other codegen
// helper that can't itself stop the code generator midway through emitting
// a statement's instructions.
func (p *program) AddValue(reg int, column *metadata.ColumnDefinition, value interface{}) {
	// Supplied value and column type must match up
	switch v := value.(type) {
	case string:
		if column.Type != storage.Text {
			p.fail("invalid-sql: column %q expects %v, got a string", column.Name, column.Type)
			return
		}
		p.OpString(reg, v)
	case int:
		if column.Type != storage.Integer {
			p.fail("invalid-sql: column %q expects %v, got an integer", column.Name, column.Type)
			return
		}
		p.OpInt(reg, v)
	case byte:
		if column.Type != storage.Byte {
			p.fail("invalid-sql: column %q expects %v, got a byte", column.Name, column.Type)
			return
		}
		p.OpInt(reg, int(v))
	case nil:
		p.OpNull(reg)
	default:
		p.fail("invalid-sql: column %q has an unsupported value type %T", column.Name, value)
	}
}

// SelectInstructions generates instructions from a select statement to
// generate rows, with an optional single WHERE comparison. An equality
// comparison against a column carrying an index compiles to an
// index-driven lookup instead of a full table scan.
func SelectInstructions(tableDefs map[string]*metadata.TableDefinition, stmt *ast.SelectStatement) ([]*Instruction, error) {
	table, ok := tableDefs[stmt.From[0].Name]
	if !ok {
		return nil, fmt.Errorf("invalid-sql: unknown table %q", stmt.From[0].Name)
	}

	colLookup := make(map[string]*metadata.ColumnDefinition, len(table.Columns))
	for _, c := range table.Columns {
		colLookup[c.Name] = c
	}

	// Build references to the columns being returned
	selectCols := make([]*metadata.ColumnDefinition, 0, len(stmt.Columns))
	for _, c := range stmt.Columns {
		if c == "*" {
			selectCols = append(selectCols, table.Columns...)
			continue
		}
		col, ok := colLookup[c]
		if !ok {
			return nil, fmt.Errorf("invalid-sql: unknown column %q on table %q", c, table.Name)
		}
		selectCols = append(selectCols, col)
	}

	if idx, col, lit, ok := equalityIndexLookup(table, colLookup, stmt.Filter); ok {
		return selectViaIndex(table, idx, col, lit, selectCols)
	}

	p := initProgram()

	readCursor := 0
	p.OpenCursor(OpOpenRead, readCursor, table.RootPage, len(selectCols), table.Name)

	firstColReg := p.RegAllocN(len(selectCols))

	haltLabel := p.MakeLabel()
	nextLabel := p.MakeLabel()
	evalLabel := p.MakeLabel()

	p.Op2(OpRewind, readCursor, haltLabel)

	p.EmitLabel(evalLabel)
	if stmt.Filter != nil {
		emitFilter(p, readCursor, colLookup, stmt.Filter, nextLabel)
	}

	// Load selected columns into registers - the primary key column never
	// lives in the record, so it's read from the cell's key instead.
	for i, c := range selectCols {
		if c.PrimaryKey {
			p.Op2(OpKey, readCursor, firstColReg+i)
		} else {
			p.Op3(OpColumn, readCursor, c.Offset, firstColReg+i)
		}
	}

	p.Op2(OpResultRow, firstColReg, len(selectCols))

	p.EmitLabel(nextLabel)
	p.Op2(OpNext, readCursor, evalLabel)

	p.EmitLabel(haltLabel)
	p.Op1(OpClose, readCursor)
	p.OpHalt()

	p.Finalize()

	if p.err != nil {
		return nil, p.err
	}
	return p.instructions, nil
}

// equalityIndexLookup recognizes a WHERE clause that is a single equality
// comparison against an indexed column, the primary key included. It
// reports ok=false for anything else - multi-term filters, range comparisons,
// columns without an index - which sends SelectInstructions back to a
// full scan.
func equalityIndexLookup(table *metadata.TableDefinition, cols map[string]*metadata.ColumnDefinition, filter ast.Expression) (*metadata.IndexDefinition, *metadata.ColumnDefinition, *ast.BasicLiteral, bool) {
	if filter == nil {
		return nil, nil, nil, false
	}

	op, ok := filter.(*ast.BinaryOperation)
	if !ok || op.Operator != "=" {
		return nil, nil, nil, false
	}

	ident, lit := ast.IdentLiteralOperation(op)
	if ident == nil || lit == nil {
		return nil, nil, nil, false
	}

	col, ok := cols[ident.Value]
	if !ok {
		return nil, nil, nil, false
	}

	idx, ok := table.Indexes[col.Name]
	if !ok {
		return nil, nil, nil, false
	}

	return idx, col, lit, true
}

// selectViaIndex compiles an equality lookup on an indexed column into a
// seek on the index b-tree followed by, for every matching entry, a seek
// on the table b-tree to fetch the row the index points to. The index
// cursor is advanced with OpNext and bounded with OpIdxGt rather than
// being reopened per match, since the indexed column's matching entries
// are contiguous in key order.
func selectViaIndex(table *metadata.TableDefinition, idx *metadata.IndexDefinition, col *metadata.ColumnDefinition, lit *ast.BasicLiteral, selectCols []*metadata.ColumnDefinition) ([]*Instruction, error) {
	p := initProgram()

	indexCursor := 0
	tableCursor := 1
	p.OpenCursor(OpOpenRead, indexCursor, idx.RootPage, 0, idx.Name)
	p.OpenCursor(OpOpenRead, tableCursor, table.RootPage, len(table.Columns), table.Name)

	litReg := p.RegAlloc()
	switch lit.Kind {
	case lexer.TokenString:
		p.OpString(litReg, lit.Value)
	default:
		p.AddValue(litReg, col, Evaluate(lit, nil).Value)
	}

	pkeyReg := p.RegAlloc()
	firstColReg := p.RegAllocN(len(selectCols))

	haltLabel := p.MakeLabel()
	loopLabel := p.MakeLabel()
	foundLabel := p.MakeLabel()
	skipRowLabel := p.MakeLabel()

	p.Op3(OpSeekGe, indexCursor, litReg, haltLabel)

	p.EmitLabel(loopLabel)
	// Entries past the matching value end the lookup; the index orders
	// entries by key, so once the cursor passes the target there are no
	// further matches left to find.
	p.Op3(OpIdxGt, indexCursor, haltLabel, litReg)
	p.Op2(OpIdxPKey, indexCursor, pkeyReg)

	// Seek jumps to foundLabel only when the row exists; the fallthrough
	// path is an index pointing at a row that is no longer there, which
	// should never happen but is skipped rather than trusted.
	p.Op3(OpSeek, tableCursor, pkeyReg, foundLabel)
	p.Op3(OpEq, pkeyReg, skipRowLabel, pkeyReg)

	p.EmitLabel(foundLabel)
	for i, c := range selectCols {
		if c.PrimaryKey {
			p.Op2(OpKey, tableCursor, firstColReg+i)
		} else {
			p.Op3(OpColumn, tableCursor, c.Offset, firstColReg+i)
		}
	}
	p.Op2(OpResultRow, firstColReg, len(selectCols))

	p.EmitLabel(skipRowLabel)
	p.Op2(OpNext, indexCursor, loopLabel)

	p.EmitLabel(haltLabel)
	p.Op1(OpClose, indexCursor)
	p.Op1(OpClose, tableCursor)
	p.OpHalt()

	p.Finalize()

	if p.err != nil {
		return nil, p.err
	}
	return p.instructions, nil
}

// emitFilter compiles a single `column OP literal` comparison, jumping
// to skipLabel (past the projection block, straight to Next) whenever
// the current row does not match.
func emitFilter(p *program, cursor int, cols map[string]*metadata.ColumnDefinition, expr ast.Expression, skipLabel int) {
	op, ok := expr.(*ast.BinaryOperation)
	if !ok {
		p.fail("invalid-sql: unsupported filter expression")
		return
	}

	ident, lit := ast.IdentLiteralOperation(op)
	if ident == nil || lit == nil {
		p.fail("invalid-sql: filter must compare a column to a literal")
		return
	}

	col, ok := cols[ident.Value]
	if !ok {
		p.fail("invalid-sql: unknown filter column %q", ident.Value)
		return
	}

	colReg := p.RegAlloc()
	if col.PrimaryKey {
		p.Op2(OpKey, cursor, colReg)
	} else {
		p.Op3(OpColumn, cursor, col.Offset, colReg)
	}

	litReg := p.RegAlloc()
	switch lit.Kind {
	case lexer.TokenString:
		p.OpString(litReg, lit.Value)
	default:
		p.AddValue(litReg, col, Evaluate(lit, nil).Value)
	}

	// A column-on-the-left comparison reads literally; a
	// literal-on-the-left comparison (`'x' = col`) has its operands
	// flipped relative to the parsed operator.
	operator := op.Operator
	if asLit := literalOnLeft(op); asLit {
		operator = flipOperator(operator)
	}

	// Negate the operator: jump to skipLabel when the negated condition
	// holds, i.e. when the original comparison does not.
	switch operator {
	case "=":
		p.Op3(OpNe, colReg, skipLabel, litReg)
	case "!=":
		p.Op3(OpEq, colReg, skipLabel, litReg)
	case "<":
		p.Op3(OpGe, colReg, skipLabel, litReg)
	case "<=":
		p.Op3(OpGt, colReg, skipLabel, litReg)
	case ">":
		p.Op3(OpLe, colReg, skipLabel, litReg)
	case ">=":
		p.Op3(OpLt, colReg, skipLabel, litReg)
	default:
		p.fail("invalid-sql: unsupported filter operator %q", operator)
		return
	}
	p.Comment(op.String())

	p.RegRelease(colReg)
	p.RegRelease(litReg)
}

func literalOnLeft(op *ast.BinaryOperation) bool {
	_, ok := op.Left.(*ast.BasicLiteral)
	return ok
}

func flipOperator(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}
