package tools

import (
	"strings"

	"github.com/askdb/askdb/pkg/oracle"
)

// StripFences removes markdown code-fence artifacts from a SQL string.
// Oracle output often arrives wrapped in ```sql fences; the wrapper markup
// must never reach the database.
func StripFences(sql string) string {
	sql = strings.ReplaceAll(sql, "```sql", "")
	sql = strings.ReplaceAll(sql, "```", "")
	return strings.TrimSpace(sql)
}

func oracleTool(name, description string, inputSchema map[string]any) oracle.Tool {
	return oracle.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
}
