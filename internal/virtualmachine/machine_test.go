package virtualmachine_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/joeandaverde/ridgedb/internal/engine"
)

type VMTestSuite struct {
	suite.Suite
	db *engine.Engine
}

func (s *VMTestSuite) SetupTest() {
	db, err := engine.Open(&engine.Config{})
	s.Require().NoError(err)
	s.db = db
}

func TestVMTestSuite(t *testing.T) {
	suite.Run(t, new(VMTestSuite))
}

func (s *VMTestSuite) run(sql string) [][]interface{} {
	stmt, err := s.db.Prepare(sql)
	s.Require().NoError(err)

	var rows [][]interface{}
	for {
		status, err := stmt.Step()
		s.Require().NoError(err)
		if status == engine.StatusDone {
			break
		}
		row := append([]interface{}{}, stmt.Row()...)
		rows = append(rows, row)
	}

	s.Require().NoError(s.db.Finalize(stmt))
	return rows
}

func (s *VMTestSuite) TestCreateTable() {
	s.run("CREATE TABLE company (company_id int PRIMARY KEY, company_name text)")
	s.True(s.db.Exists("company"))
}

func (s *VMTestSuite) TestInsertAndSelect() {
	s.run("CREATE TABLE company (company_id int PRIMARY KEY, company_name text, description text)")
	s.run("INSERT INTO company (company_id, company_name, description) VALUES (99, 'hashicorp', NULL)")

	rows := s.run("SELECT * FROM company")
	s.Require().Len(rows, 1)
	s.EqualValues(99, rows[0][0])
	s.Equal("hashicorp", rows[0][1])
	s.Nil(rows[0][2])
}

func (s *VMTestSuite) TestSelectWithWhere() {
	s.run("CREATE TABLE company (company_id int PRIMARY KEY, company_name text)")
	s.run("INSERT INTO company (company_id, company_name) VALUES (1, 'hashicorp')")
	s.run("INSERT INTO company (company_id, company_name) VALUES (2, 'smrxt')")

	rows := s.run("SELECT * FROM company WHERE company_name = 'smrxt'")
	s.Require().Len(rows, 1)
	s.EqualValues(2, rows[0][0])
	s.Equal("smrxt", rows[0][1])
}

func (s *VMTestSuite) TestExplain() {
	s.run("CREATE TABLE company (company_id int PRIMARY KEY, company_name text)")

	stmt, err := s.db.PrepareExplain("SELECT * FROM company")
	s.Require().NoError(err)
	s.Equal([]string{"addr", "opcode", "p1", "p2", "p3", "p4"}, stmt.Columns())

	status, err := stmt.Step()
	s.Require().NoError(err)
	s.Equal(engine.StatusRow, status)
	s.Len(stmt.Row(), 6)
}
