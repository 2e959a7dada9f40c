package command

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/joeandaverde/ridgedb/internal/engine"
)

// ReplCommand reads statements from stdin, each terminated by a semicolon
// (or by the end of input), and prints their results to stdout.
type ReplCommand struct {
	ShutDownCh <-chan struct{}
}

func (c *ReplCommand) Help() string {
	helpText := `
Usage: ridgedb repl [options]

Options:

	-config=""	YAML configuration file (page size, db path, log level)
	-db=""		Path to the database file (overrides config, memory if empty)
`
	return strings.TrimSpace(helpText)
}

func (c *ReplCommand) Synopsis() string {
	return "Starts an interactive SQL session against the database"
}

func (c *ReplCommand) Run(args []string) int {
	var configPath string
	var dbPath string

	cmdFlags := flag.NewFlagSet("repl", flag.ContinueOnError)
	cmdFlags.StringVar(&configPath, "config", "", "config file")
	cmdFlags.StringVar(&dbPath, "db", "", "database file path")
	if err := cmdFlags.Parse(args); err != nil {
		return 1
	}

	config := &engine.Config{}
	if configPath != "" {
		configFile, err := os.Open(configPath)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error opening config file: %s\n", err.Error())
			return 1
		}
		defer configFile.Close()

		if err := yaml.NewDecoder(configFile).Decode(config); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error parsing config file: %s\n", err.Error())
			return 1
		}
	}
	if dbPath != "" {
		config.Path = dbPath
	}

	db, err := engine.Open(config)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error opening database: %s\n", err.Error())
		return 1
	}
	defer db.Close()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Split(onSemicolon)

	fmt.Printf("ridgedb [%s]\n", config)

	for scanner.Scan() {
		select {
		case <-c.ShutDownCh:
			return 0
		default:
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		c.exec(db, text)
	}

	if err := scanner.Err(); err != nil {
		db.Log.Errorf("repl error: %s", err.Error())
		return 1
	}

	return 0
}

func (c *ReplCommand) exec(db *engine.Engine, text string) {
	explain := false
	if rest := strings.TrimPrefix(strings.ToUpper(text), "EXPLAIN"); rest != strings.ToUpper(text) {
		explain = true
		text = strings.TrimSpace(text[len("EXPLAIN"):])
	}

	var stmt *engine.Statement
	var err error
	if explain {
		stmt, err = db.PrepareExplain(text)
	} else {
		stmt, err = db.Prepare(text)
	}
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		return
	}

	if cols := stmt.Columns(); len(cols) > 0 {
		fmt.Println(strings.Join(cols, "\t"))
	}

	for {
		status, err := stmt.Step()
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			return
		}
		if status == engine.StatusDone {
			break
		}
		fmt.Println(formatRow(stmt.Row()))
	}

	if err := db.Finalize(stmt); err != nil {
		fmt.Printf("error: %s\n", err.Error())
	}
}

func formatRow(row []interface{}) string {
	parts := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			parts[i] = "NULL"
		} else {
			parts[i] = fmt.Sprintf("%v", v)
		}
	}
	return strings.Join(parts, "\t")
}

func onSemicolon(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == ';' {
			return i + 1, data[:i], nil
		}
	}

	if atEOF {
		return len(data), data, bufio.ErrFinalToken
	}

	return 0, nil, nil
}
