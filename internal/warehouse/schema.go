package warehouse

import (
	"errors"
	"strings"
)

// ErrUnavailable marks failures to reach or read the warehouse catalog.
var ErrUnavailable = errors.New("database unavailable")

type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Schema lists user tables in catalog order.
type Schema struct {
	Tables []Table `json:"tables"`
}

// String renders one "table(col1, col2)" line per table.
func (s Schema) String() string {
	lines := make([]string, 0, len(s.Tables))
	for _, table := range s.Tables {
		lines = append(lines, table.Name+"("+strings.Join(table.Columns, ", ")+")")
	}
	return strings.Join(lines, "\n")
}

func (s Schema) Table(name string) (Table, bool) {
	for _, table := range s.Tables {
		if strings.EqualFold(table.Name, name) {
			return table, true
		}
	}
	return Table{}, false
}
