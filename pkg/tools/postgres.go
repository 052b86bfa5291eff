package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Capability names exposed to the oracle.
const (
	CapListTables = "list_tables"
	CapGetSchema  = "get_schema"
	CapRunQuery   = "run_query"
)

const (
	maxResultRows  = 50  // Maximum rows to include in a tool result
	maxValueLength = 200 // Maximum length for individual cell values
)

// Outcome is the result of executing a SQL query. Execution never raises;
// failures are carried as human-readable text with IsError set.
type Outcome struct {
	Text    string
	IsError bool
}

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// TableSchema describes the columns of one table, in ordinal order.
type TableSchema struct {
	Table   string
	Columns []Column
}

// Postgres provides schema introspection and query execution over a pgx
// connection pool. Schema is read from the catalog on every call; results
// are never cached across requests.
type Postgres struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgres creates a Postgres capability provider.
func NewPostgres(pool *pgxpool.Pool, log *slog.Logger) *Postgres {
	return &Postgres{
		pool: pool,
		log:  log,
	}
}

// ListTables returns the names of the base tables in the public schema.
func (p *Postgres) ListTables(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableSchema returns the column definitions of the given table.
func (p *Postgres) TableSchema(ctx context.Context, table string) (TableSchema, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return TableSchema{}, fmt.Errorf("failed to get schema for %s: %w", table, err)
	}
	defer rows.Close()

	schema := TableSchema{Table: table}
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return TableSchema{}, fmt.Errorf("failed to scan column: %w", err)
		}
		schema.Columns = append(schema.Columns, Column{
			Name:     name,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}
	return schema, rows.Err()
}

// RunQuery executes a SQL string and returns the outcome. It never raises:
// database errors come back as error-flagged text the caller can phrase for
// a human. Markdown fence artifacts are stripped before execution.
func (p *Postgres) RunQuery(ctx context.Context, sql string) Outcome {
	sql = StripFences(sql)
	if sql == "" {
		return Outcome{Text: "No SQL query was provided.", IsError: true}
	}

	if p.log != nil {
		p.log.Info("executing query", "sql", sql)
	}

	rows, err := p.pool.Query(ctx, sql)
	if err != nil {
		return Outcome{Text: fmt.Sprintf("Error executing query: %v", err), IsError: true}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	var data [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Outcome{Text: fmt.Sprintf("Error reading query results: %v", err), IsError: true}
		}
		data = append(data, values)
	}
	if err := rows.Err(); err != nil {
		return Outcome{Text: fmt.Sprintf("Error executing query: %v", err), IsError: true}
	}

	return Outcome{Text: formatResult(columns, data)}
}

// Capabilities returns the three database capabilities grantable to the
// oracle: list tables, get schema, execute query.
func (p *Postgres) Capabilities() []Capability {
	return []Capability{
		{
			Tool: oracleTool(CapListTables,
				"List the names of the tables in the connected PostgreSQL database.",
				map[string]any{"type": "object", "properties": map[string]any{}}),
			Run: func(ctx context.Context, args map[string]any) (string, bool, error) {
				tables, err := p.ListTables(ctx)
				if err != nil {
					return fmt.Sprintf("Error listing tables: %v", err), true, nil
				}
				if len(tables) == 0 {
					return "No tables found in the database.", false, nil
				}
				return strings.Join(tables, ", "), false, nil
			},
		},
		{
			Tool: oracleTool(CapGetSchema,
				"Get the column definitions of a table. Always list the tables first.",
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"table": map[string]any{
							"type":        "string",
							"description": "Name of the table to describe",
						},
					},
					"required": []string{"table"},
				}),
			Run: func(ctx context.Context, args map[string]any) (string, bool, error) {
				table, ok := args["table"].(string)
				if !ok || table == "" {
					return "table parameter is required and must be a string", true, nil
				}
				schema, err := p.TableSchema(ctx, table)
				if err != nil {
					return fmt.Sprintf("Error getting schema: %v", err), true, nil
				}
				if len(schema.Columns) == 0 {
					return fmt.Sprintf("Table %q does not exist.", table), true, nil
				}
				return formatSchema(schema), false, nil
			},
		},
		{
			Tool: oracleTool(CapRunQuery,
				"Execute a SQL query against the PostgreSQL database and return the result. "+
					"If the query is invalid or fails, an error message is returned and the query should be rewritten.",
				map[string]any{
					"type": "object",
					"properties": map[string]any{
						"sql": map[string]any{
							"type":        "string",
							"description": "The SQL query to execute",
						},
					},
					"required": []string{"sql"},
				}),
			Run: func(ctx context.Context, args map[string]any) (string, bool, error) {
				sql, ok := args["sql"].(string)
				if !ok || sql == "" {
					return "sql parameter is required and must be a string", true, nil
				}
				outcome := p.RunQuery(ctx, sql)
				return outcome.Text, outcome.IsError, nil
			},
		},
	}
}

// formatSchema renders a table schema in a compact one-line-per-column form.
func formatSchema(schema TableSchema) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Table %s:\n", schema.Table))
	for _, col := range schema.Columns {
		sb.WriteString(fmt.Sprintf("  %s %s", col.Name, col.Type))
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// formatResult renders query results in a compact text format to keep tool
// results small. Empty results get a distinct phrasing so the oracle can
// tell "no rows" apart from a failure.
func formatResult(columns []string, rows [][]any) string {
	if len(rows) == 0 {
		return "Query returned no rows."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(columns, ", ")))

	displayRows := len(rows)
	if displayRows > maxResultRows {
		displayRows = maxResultRows
	}
	for _, row := range rows[:displayRows] {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatValue(v)
		}
		sb.WriteString(strings.Join(cells, ", "))
		sb.WriteString("\n")
	}
	if len(rows) > displayRows {
		sb.WriteString(fmt.Sprintf("... (%d more rows)\n", len(rows)-displayRows))
	}
	sb.WriteString(fmt.Sprintf("Total rows: %d", len(rows)))
	return sb.String()
}

// formatValue renders a single cell value, truncating long strings.
func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	s := fmt.Sprintf("%v", v)
	if len(s) > maxValueLength {
		s = s[:maxValueLength] + "..."
	}
	return s
}
