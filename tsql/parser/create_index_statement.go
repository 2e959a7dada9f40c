package parser

import (
	"github.com/joeandaverde/ridgedb/tsql/ast"
	"github.com/joeandaverde/ridgedb/tsql/lexer"
	"github.com/joeandaverde/ridgedb/tsql/scan"
)

func parseCreateIndex(scanner scan.TinyScanner) (*ast.CreateIndexStatement, error) {
	createIndexStatement := ast.CreateIndexStatement{}

	ok, _ := allX(
		committed("CREATE", keyword(lexer.TokenCreate)),
		keyword(lexer.TokenIndex),
		optional(
			allX(keyword(lexer.TokenIf), keyword(lexer.TokenNot), keyword(lexer.TokenExists)),
			func(tokens []lexer.Token) {
				createIndexStatement.IfNotExists = true
			}),
		ident(func(indexName string) {
			createIndexStatement.IndexName = indexName
		}),
		keyword(lexer.TokenOn),
		ident(func(tableName string) {
			createIndexStatement.TableName = tableName
		}),
		parens(ident(func(columnName string) {
			createIndexStatement.ColumnName = columnName
		})),
	)(scanner)

	if ok {
		createIndexStatement.RawText = scanner.Text()
		return &createIndexStatement, nil
	}

	return nil, nil
}
