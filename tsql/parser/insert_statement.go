package parser

import (
	"fmt"

	"github.com/joeandaverde/ridgedb/tsql/ast"
	"github.com/joeandaverde/ridgedb/tsql/lexer"
	"github.com/joeandaverde/ridgedb/tsql/scan"
)

func parseInsert(scanner scan.TinyScanner) (*ast.InsertStatement, error) {
	insertStatement := ast.InsertStatement{}

	var columns []string
	var rows [][]ast.Expression

	columnList := optionalX(parensCommaSep(
		ident(func(column string) {
			columns = append(columns, column)
		}),
	))

	valuesTuple := func(scanner scan.TinyScanner) (bool, interface{}) {
		var row []ast.Expression
		ok, res := parensCommaSep(
			makeExpressionParser(func(e ast.Expression) {
				row = append(row, e)
			}),
		)(scanner)
		if ok {
			rows = append(rows, row)
		}
		return ok, res
	}

	ok, _ := allX(
		committed("INSERT", keyword(lexer.TokenInsert)),
		keyword(lexer.TokenInto),
		ident(func(tableName string) {
			insertStatement.Table = tableName
		}),
		columnList,
		keyword(lexer.TokenValues),
		committed("VALUES", commaSeparated(valuesTuple)),
	)(scanner)

	if !ok {
		return nil, nil
	}

	if len(columns) > 0 {
		for _, row := range rows {
			if len(row) != len(columns) {
				return nil, fmt.Errorf("unexpected number of values: expected %d got %d", len(columns), len(row))
			}
		}
		insertStatement.Columns = columns
	}

	insertStatement.Rows = rows
	return &insertStatement, nil
}
