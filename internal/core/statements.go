package core

import (
	"errors"
	"fmt"
	"strings"
)

// Statement is one SQL text with its positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

const listTablesSQL = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`

// statementBuilder assembles every SQL text the service issues.
type statementBuilder struct {
	policy IdentifierPolicy
}

func (b statementBuilder) listTables() Statement {
	return Statement{SQL: listTablesSQL}
}

func (b statementBuilder) selectAll(table string) (Statement, error) {
	t, err := b.policy.Quote(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "SELECT * FROM " + t}, nil
}

func (b statementBuilder) createTable(table string, columns []ColumnSpec) (Statement, error) {
	t, err := b.policy.Quote(table)
	if err != nil {
		return Statement{}, err
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		c, err := b.policy.Quote(col.Name)
		if err != nil {
			return Statement{}, err
		}
		defs[i] = c + " " + col.Type
	}

	return Statement{
		SQL: fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t, strings.Join(defs, ", ")),
	}, nil
}

func (b statementBuilder) dropTable(table string) (Statement, error) {
	t, err := b.policy.Quote(table)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: "DROP TABLE IF EXISTS " + t}, nil
}

// insert builds one INSERT per row. The column list comes from rows[0] and is
// reused as is: a later row missing a column binds NULL, extra keys are ignored.
func (b statementBuilder) insert(table string, rows []Record) ([]Statement, error) {
	if len(rows) == 0 {
		return nil, invalid("No data to upload.")
	}

	t, err := b.policy.Quote(table)
	if err != nil {
		return nil, err
	}

	columns := rows[0].Keys()
	if len(columns) == 0 {
		return nil, invalidRow(0, "", "No columns to insert.")
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		q, err := b.policy.Quote(col)
		if err != nil {
			return nil, atRow(err, 0)
		}
		quoted[i] = q
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	stmts := make([]Statement, len(rows))
	for i, row := range rows {
		args := make([]any, len(columns))
		for j, col := range columns {
			args[j], _ = row.Get(col)
		}
		stmts[i] = Statement{SQL: sql, Args: args}
	}
	return stmts, nil
}

// update builds one UPDATE per row. Keys other than ReservedUpdateField are
// ANDed equality conditions bound first; the ReservedUpdateField value is
// bound last and assigned to the column of that same name.
func (b statementBuilder) update(table string, rows []Record) ([]Statement, error) {
	if len(rows) == 0 {
		return nil, invalid("Invalid data format.")
	}

	t, err := b.policy.Quote(table)
	if err != nil {
		return nil, err
	}
	setCol := quoteIdentifier(ReservedUpdateField)

	stmts := make([]Statement, len(rows))
	for i, row := range rows {
		newValue, hasSet := row.Get(ReservedUpdateField)

		conditions := make([]string, 0, len(row))
		args := make([]any, 0, len(row))
		for _, f := range row {
			if f.Name == ReservedUpdateField {
				continue
			}
			c, err := b.policy.Quote(f.Name)
			if err != nil {
				return nil, atRow(err, i)
			}
			args = append(args, f.Value)
			conditions = append(conditions, fmt.Sprintf("%s = $%d", c, len(args)))
		}

		if !hasSet || len(conditions) == 0 {
			return nil, invalidRow(i, ReservedUpdateField, "No unique columns or update fields specified.")
		}

		args = append(args, newValue)
		stmts[i] = Statement{
			SQL: fmt.Sprintf("UPDATE %s SET %s = $%d WHERE %s",
				t, setCol, len(args), strings.Join(conditions, " AND ")),
			Args: args,
		}
	}
	return stmts, nil
}

// atRow stamps a row index onto a *ValidationError.
func atRow(err error, row int) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		cp := *ve
		cp.Row = row
		return &cp
	}
	return err
}
