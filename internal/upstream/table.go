package upstream

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/argusquant/argus/internal/domain"
)

// Table is the tabular payload shape shared by the data vendors: a list
// of column names plus rows of loosely typed cells. All field extraction
// goes through name lookup, never positional indexing, because vendors
// add and reorder columns without notice.
type Table struct {
	Fields []string
	Rows   [][]interface{}

	index map[string]int
}

// NewTable builds a Table and its column index.
func NewTable(fields []string, rows [][]interface{}) *Table {
	t := &Table{Fields: fields, Rows: rows}
	t.index = make(map[string]int, len(fields))
	for i, f := range fields {
		t.index[f] = i
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Col returns the index of an exactly named column, or -1.
func (t *Table) Col(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// ResolveColumn finds the first column whose name contains substr,
// skipping columns that contain any of the exclude substrings. Vendors
// prefix some column names with the session date, so exact names cannot
// be relied on.
func (t *Table) ResolveColumn(substr string, exclude ...string) (int, string, bool) {
outer:
	for i, f := range t.Fields {
		if !strings.Contains(f, substr) {
			continue
		}
		for _, ex := range exclude {
			if strings.Contains(f, ex) {
				continue outer
			}
		}
		return i, f, true
	}
	return -1, "", false
}

var colDatePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}|\d{8}`)

// DateInColumn parses the date embedded in a dynamic column name.
func DateInColumn(name string) (domain.TradeDate, bool) {
	m := colDatePattern.FindString(name)
	if m == "" {
		return "", false
	}
	d, err := domain.ParseTradeDate(m)
	if err != nil {
		return "", false
	}
	return d, true
}

// Float reads a cell as a float. Numeric strings are coerced; nil cells,
// empty strings, NaN, infinities and unparseable values return nil.
func (t *Table) Float(row, col int) *float64 {
	v := t.cell(row, col)
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		f := float64(x)
		return &f
	case int64:
		f := float64(x)
		return &f
	case string:
		s := strings.TrimSpace(x)
		if s == "" || s == "-" || s == "--" {
			return nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return finite(f)
		}
	}
	return nil
}

func finite(f float64) *float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// FloatByName reads a cell as a float via column name.
func (t *Table) FloatByName(row int, name string) *float64 {
	return t.Float(row, t.Col(name))
}

// Str reads a cell as a string. Non-string cells are formatted.
func (t *Table) Str(row, col int) string {
	v := t.cell(row, col)
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

// StrByName reads a cell as a string via column name.
func (t *Table) StrByName(row int, name string) string {
	return t.Str(row, t.Col(name))
}

func (t *Table) cell(row, col int) interface{} {
	if row < 0 || row >= len(t.Rows) || col < 0 {
		return nil
	}
	r := t.Rows[row]
	if col >= len(r) {
		return nil
	}
	return r[col]
}
