package table

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

// Operation is an aggregation or projection over the dataset
type Operation string

const (
	OpCount    Operation = "count"
	OpSum      Operation = "sum"
	OpMean     Operation = "mean"
	OpMin      Operation = "min"
	OpMax      Operation = "max"
	OpSelect   Operation = "select"
	OpDistinct Operation = "distinct"
)

// FilterOp compares a column against a value
type FilterOp string

const (
	FilterEq       FilterOp = "eq"
	FilterNe       FilterOp = "ne"
	FilterGt       FilterOp = "gt"
	FilterGte      FilterOp = "gte"
	FilterLt       FilterOp = "lt"
	FilterLte      FilterOp = "lte"
	FilterContains FilterOp = "contains"
)

const defaultLimit = 20

// Filter restricts the rows a plan operates on
type Filter struct {
	Column string   `json:"column"`
	Op     FilterOp `json:"op"`
	Value  string   `json:"value"`
}

// Plan is a structured query over a TabularDataset
type Plan struct {
	Operation Operation `json:"operation"`
	Column    string    `json:"column"`
	Filters   []Filter  `json:"filters"`
	GroupBy   string    `json:"group_by"`
	Limit     int       `json:"limit"`
}

func queryError(msg string, vals ...goerr.Option) error {
	return goerr.Wrap(model.ErrTableQuery, msg, vals...)
}

// Validate checks the plan against the dataset schema
func (p *Plan) Validate(ds *model.TabularDataset) error {
	switch p.Operation {
	case OpCount, OpSelect:
		if p.Column != "" && !ds.HasColumn(p.Column) {
			return queryError("unknown column", goerr.V(model.ColumnKey, p.Column))
		}
	case OpSum, OpMean:
		if !ds.HasColumn(p.Column) {
			return queryError("unknown column", goerr.V(model.ColumnKey, p.Column))
		}
		if !ds.Numeric[p.Column] {
			return queryError("numeric operation on non-numeric column",
				goerr.V(model.ColumnKey, p.Column), goerr.V("operation", p.Operation))
		}
	case OpMin, OpMax, OpDistinct:
		if !ds.HasColumn(p.Column) {
			return queryError("unknown column", goerr.V(model.ColumnKey, p.Column))
		}
	default:
		return queryError("unknown operation", goerr.V("operation", p.Operation))
	}

	if p.GroupBy != "" {
		if !ds.HasColumn(p.GroupBy) {
			return queryError("unknown group_by column", goerr.V(model.ColumnKey, p.GroupBy))
		}
		if p.Operation == OpSelect || p.Operation == OpDistinct {
			return queryError("group_by is not supported for operation", goerr.V("operation", p.Operation))
		}
	}

	if p.Limit < 0 {
		return queryError("negative limit", goerr.V("limit", p.Limit))
	}

	for _, f := range p.Filters {
		if !ds.HasColumn(f.Column) {
			return queryError("unknown filter column", goerr.V(model.ColumnKey, f.Column))
		}
		switch f.Op {
		case FilterEq, FilterNe, FilterContains:
		case FilterGt, FilterGte, FilterLt, FilterLte:
			if !ds.Numeric[f.Column] {
				return queryError("numeric comparison on non-numeric column",
					goerr.V(model.ColumnKey, f.Column), goerr.V("op", f.Op))
			}
			if _, _, ok := parseDecimal(f.Value); !ok {
				return queryError("numeric comparison with non-numeric value",
					goerr.V(model.ColumnKey, f.Column), goerr.V("value", f.Value))
			}
		default:
			return queryError("unknown filter operator", goerr.V("op", f.Op))
		}
	}

	return nil
}

func (f Filter) match(ds *model.TabularDataset, row []string) bool {
	idx, _ := ds.ColumnIndex(f.Column)
	cell := strings.TrimSpace(row[idx])
	value := strings.TrimSpace(f.Value)

	if ds.Numeric[f.Column] {
		a, _, okA := parseDecimal(cell)
		b, _, okB := parseDecimal(value)
		if okA && okB {
			c := a.Cmp(b)
			switch f.Op {
			case FilterEq:
				return c == 0
			case FilterNe:
				return c != 0
			case FilterGt:
				return c > 0
			case FilterGte:
				return c >= 0
			case FilterLt:
				return c < 0
			case FilterLte:
				return c <= 0
			}
		}
		if f.Op != FilterEq && f.Op != FilterNe && f.Op != FilterContains {
			return false
		}
	}

	switch f.Op {
	case FilterEq:
		return strings.EqualFold(cell, value)
	case FilterNe:
		return !strings.EqualFold(cell, value)
	case FilterContains:
		return strings.Contains(strings.ToLower(cell), strings.ToLower(value))
	}
	return false
}

func (p *Plan) rows(ds *model.TabularDataset) [][]string {
	var out [][]string
	for _, row := range ds.Rows {
		ok := true
		for _, f := range p.Filters {
			if !f.match(ds, row) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

// Execute validates and evaluates the plan and renders the result as text
func Execute(ds *model.TabularDataset, p *Plan) (string, error) {
	if err := p.Validate(ds); err != nil {
		return "", err
	}

	rows := p.rows(ds)
	limit := p.Limit
	if limit == 0 {
		limit = defaultLimit
	}

	switch p.Operation {
	case OpSelect:
		return renderSelect(ds, p.Column, rows, limit), nil
	case OpDistinct:
		return renderDistinct(ds, p.Column, rows, limit), nil
	}

	if p.GroupBy == "" {
		return aggregate(ds, p.Operation, p.Column, rows), nil
	}

	gi, _ := ds.ColumnIndex(p.GroupBy)
	groups := make(map[string][][]string)
	for _, row := range rows {
		key := strings.TrimSpace(row[gi])
		groups[key] = append(groups[key], row)
	}
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return "no matching rows", nil
	}

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s: %s", p.GroupBy, k, aggregate(ds, p.Operation, p.Column, groups[k])))
	}
	return strings.Join(lines, "\n"), nil
}

func aggregate(ds *model.TabularDataset, op Operation, column string, rows [][]string) string {
	if op == OpCount {
		if column == "" {
			return strconv.Itoa(len(rows))
		}
		ci, _ := ds.ColumnIndex(column)
		n := 0
		for _, row := range rows {
			if strings.TrimSpace(row[ci]) != "" {
				n++
			}
		}
		return strconv.Itoa(n)
	}

	ci, _ := ds.ColumnIndex(column)
	scale := ds.Scale[column]

	switch op {
	case OpSum, OpMean:
		sum := new(big.Rat)
		n := 0
		for _, row := range rows {
			v, _, ok := parseDecimal(row[ci])
			if !ok {
				continue
			}
			sum.Add(sum, v)
			n++
		}
		if op == OpSum {
			return sum.FloatString(scale)
		}
		if n == 0 {
			return "no matching rows"
		}
		mean := new(big.Rat).Quo(sum, new(big.Rat).SetInt64(int64(n)))
		return trimZeros(mean.FloatString(scale + 6))

	case OpMin, OpMax:
		var best string
		var bestNum *big.Rat
		for _, row := range rows {
			cell := strings.TrimSpace(row[ci])
			if cell == "" {
				continue
			}
			if ds.Numeric[column] {
				v, _, _ := parseDecimal(cell)
				if bestNum == nil || (op == OpMin && v.Cmp(bestNum) < 0) || (op == OpMax && v.Cmp(bestNum) > 0) {
					bestNum, best = v, cell
				}
				continue
			}
			if best == "" || (op == OpMin && cell < best) || (op == OpMax && cell > best) {
				best = cell
			}
		}
		if best == "" {
			return "no matching rows"
		}
		return best
	}

	return ""
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func renderSelect(ds *model.TabularDataset, column string, rows [][]string, limit int) string {
	if len(rows) == 0 {
		return "no matching rows"
	}

	var lines []string
	for i, row := range rows {
		if i == limit {
			lines = append(lines, fmt.Sprintf("... %d more rows", len(rows)-limit))
			break
		}
		if column != "" {
			ci, _ := ds.ColumnIndex(column)
			lines = append(lines, row[ci])
			continue
		}
		fields := make([]string, len(ds.Columns))
		for j, c := range ds.Columns {
			fields[j] = c + "=" + row[j]
		}
		lines = append(lines, strings.Join(fields, ", "))
	}
	return strings.Join(lines, "\n")
}

func renderDistinct(ds *model.TabularDataset, column string, rows [][]string, limit int) string {
	ci, _ := ds.ColumnIndex(column)
	seen := make(map[string]bool)
	var values []string
	for _, row := range rows {
		v := strings.TrimSpace(row[ci])
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	if len(values) == 0 {
		return "no matching rows"
	}
	sort.Strings(values)
	if len(values) > limit {
		values = append(values[:limit], fmt.Sprintf("... %d more values", len(values)-limit))
	}
	return strings.Join(values, "\n")
}
