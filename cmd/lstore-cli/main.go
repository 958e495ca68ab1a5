package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/lstore-db/lstore/pkg/database"
	"github.com/lstore-db/lstore/pkg/query"
)

const (
	version = "0.1.0"
	banner  = `
L-Store CLI v%s
Type 'help' for available commands
Type 'exit' or 'quit' to exit

`
)

type CLI struct {
	db          *database.Database
	currentName string
	scanner     *bufio.Scanner
}

func NewCLI(dataDir string) (*CLI, error) {
	config := database.DefaultConfig(dataDir)
	db, err := database.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &CLI{db: db, scanner: bufio.NewScanner(os.Stdin)}, nil
}

func (c *CLI) Close() error {
	return c.db.Close()
}

func (c *CLI) Run() error {
	fmt.Printf(banner, version)

	for {
		prompt := "lstore> "
		if c.currentName != "" {
			prompt = fmt.Sprintf("lstore:%s> ", c.currentName)
		}
		fmt.Print(prompt)

		if !c.scanner.Scan() {
			break
		}
		line := strings.TrimSpace(c.scanner.Text())
		if line == "" {
			continue
		}

		if err := c.executeCommand(line); err != nil {
			if err.Error() == "exit" {
				fmt.Println("bye")
				return nil
			}
			fmt.Printf("error: %v\n", err)
		}
	}
	return c.scanner.Err()
}

func (c *CLI) executeCommand(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])

	switch cmd {
	case "help", "?":
		return c.showHelp()
	case "exit", "quit":
		return fmt.Errorf("exit")
	case "tables":
		return c.showTables()
	case "create":
		return c.createTable(parts)
	case "drop":
		return c.dropTable(parts)
	case "use":
		return c.useTable(parts)
	case "insert", "select", "update", "delete", "sum", "increment", "createindex", "dropindex":
		return c.tableCommand(cmd, parts)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

func (c *CLI) showHelp() error {
	help := `
L-Store CLI commands:

  help, ?                              show this help
  exit, quit                           exit the CLI
  tables                                list tables
  create <table> <num_cols> <key_col>   create a table
  drop <table>                          drop a table
  use <table>                           select the active table

Row operations (on the active table):
  insert <v0> <v1> ...                  insert a row
  select <key> [version]                select by primary key, optional relative version
  update <key> <v0|_> <v1|_> ...        update a row; "_" leaves a column unchanged
  delete <key>                          delete a row
  sum <lo> <hi> <col> [version]         sum col over keys in [lo, hi]
  increment <key> <col>                 increment col by 1
  createindex <col>                     build a secondary index on col
  dropindex <col>                       drop a secondary index
`
	fmt.Println(help)
	return nil
}

func (c *CLI) showTables() error {
	names := c.db.TableNames()
	fmt.Printf("tables (%d):\n", len(names))
	for _, n := range names {
		fmt.Printf("  %s\n", n)
	}
	return nil
}

func (c *CLI) createTable(parts []string) error {
	if len(parts) != 4 {
		return fmt.Errorf("usage: create <table> <num_cols> <key_col>")
	}
	numCols, err := strconv.Atoi(parts[2])
	if err != nil {
		return fmt.Errorf("invalid num_cols: %w", err)
	}
	keyCol, err := strconv.Atoi(parts[3])
	if err != nil {
		return fmt.Errorf("invalid key_col: %w", err)
	}
	if _, err := c.db.CreateTable(parts[1], numCols, keyCol); err != nil {
		return err
	}
	fmt.Printf("created table %q\n", parts[1])
	return nil
}

func (c *CLI) dropTable(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: drop <table>")
	}
	if err := c.db.DropTable(parts[1]); err != nil {
		return err
	}
	if c.currentName == parts[1] {
		c.currentName = ""
	}
	fmt.Printf("dropped table %q\n", parts[1])
	return nil
}

func (c *CLI) useTable(parts []string) error {
	if len(parts) != 2 {
		return fmt.Errorf("usage: use <table>")
	}
	if _, ok := c.db.GetTable(parts[1]); !ok {
		return fmt.Errorf("unknown table: %s", parts[1])
	}
	c.currentName = parts[1]
	fmt.Printf("using table %q\n", parts[1])
	return nil
}

func (c *CLI) tableCommand(cmd string, parts []string) error {
	if c.currentName == "" {
		return fmt.Errorf("no table selected (use 'use <table>' first)")
	}
	eng, ok := c.db.GetTable(c.currentName)
	if !ok {
		return fmt.Errorf("unknown table: %s", c.currentName)
	}

	switch cmd {
	case "insert":
		return c.insertRow(eng, parts[1:])
	case "select":
		return c.selectRow(eng, parts[1:])
	case "update":
		return c.updateRow(eng, parts[1:])
	case "delete":
		return c.deleteRow(eng, parts[1:])
	case "sum":
		return c.sumRange(eng, parts[1:])
	case "increment":
		return c.incrementRow(eng, parts[1:])
	case "createindex":
		return c.createIndex(eng, parts[1:])
	case "dropindex":
		return c.dropIndex(eng, parts[1:])
	}
	return nil
}

func (c *CLI) insertRow(eng *query.Engine, args []string) error {
	cols, err := parseInts(args)
	if err != nil {
		return err
	}
	if !eng.Insert(cols) {
		return fmt.Errorf("insert rejected: arity mismatch or duplicate key")
	}
	fmt.Println("inserted")
	return nil
}

func (c *CLI) selectRow(eng *query.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: select <key> [version]")
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	var version int64
	if len(args) > 1 {
		version, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
	}

	numCols := eng.Table().NumColumns
	projection := make([]bool, numCols)
	for i := range projection {
		projection[i] = true
	}
	recs, _ := eng.SelectVersion(key, eng.Table().KeyCol, projection, version)
	if len(recs) == 0 {
		fmt.Println("(no matching rows)")
		return nil
	}
	for _, rec := range recs {
		vals := make([]string, numCols)
		for i := 0; i < numCols; i++ {
			v, _ := rec.At(i)
			vals[i] = strconv.FormatInt(v, 10)
		}
		fmt.Printf("rid=%d [%s]\n", rec.RID, strings.Join(vals, ", "))
	}
	return nil
}

func (c *CLI) updateRow(eng *query.Engine, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: update <key> <v0|_> <v1|_> ...")
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	cols := make([]query.OptionalInt, eng.Table().NumColumns)
	for i, raw := range args[1:] {
		if i >= len(cols) {
			break
		}
		if raw == "_" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid column value %q: %w", raw, err)
		}
		cols[i] = query.Some(v)
	}
	if !eng.Update(key, cols) {
		return fmt.Errorf("update rejected: unknown key or primary-key change")
	}
	fmt.Println("updated")
	return nil
}

func (c *CLI) deleteRow(eng *query.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: delete <key>")
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	if !eng.Delete(key) {
		return fmt.Errorf("delete rejected: unknown key")
	}
	fmt.Println("deleted")
	return nil
}

func (c *CLI) sumRange(eng *query.Engine, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: sum <lo> <hi> <col> [version]")
	}
	lo, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid lo: %w", err)
	}
	hi, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hi: %w", err)
	}
	col, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid col: %w", err)
	}
	var version int64
	if len(args) > 3 {
		version, err = strconv.ParseInt(args[3], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid version: %w", err)
		}
	}
	value, found := eng.SumVersion(lo, hi, col, version)
	if !found {
		fmt.Println("(no keys in range)")
		return nil
	}
	fmt.Printf("sum: %d\n", value)
	return nil
}

func (c *CLI) incrementRow(eng *query.Engine, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: increment <key> <col>")
	}
	key, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key: %w", err)
	}
	col, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid col: %w", err)
	}
	if !eng.Increment(key, col) {
		return fmt.Errorf("increment rejected: unknown key")
	}
	fmt.Println("incremented")
	return nil
}

func (c *CLI) createIndex(eng *query.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: createindex <col>")
	}
	col, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid col: %w", err)
	}
	if err := eng.CreateIndex(col); err != nil {
		return err
	}
	fmt.Printf("created index on column %d\n", col)
	return nil
}

func (c *CLI) dropIndex(eng *query.Engine, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: dropindex <col>")
	}
	col, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid col: %w", err)
	}
	if err := eng.DropIndex(col); err != nil {
		return err
	}
	fmt.Printf("dropped index on column %d\n", col)
	return nil
}

func parseInts(args []string) ([]int64, error) {
	out := make([]int64, len(args))
	for i, a := range args {
		v, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", a, err)
		}
		out[i] = v
	}
	return out, nil
}

func main() {
	dataDir := "./lstore-data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	cli, err := NewCLI(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cli.Close()

	if err := cli.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
