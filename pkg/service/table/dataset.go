package table

import (
	"encoding/csv"
	"errors"
	"io"
	"io/fs"
	"math/big"
	"os"
	"regexp"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/taxagent/pkg/domain/model"
)

var decimalPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)

// parseDecimal parses plain and currency-formatted decimals such as "$1,234.50"
// and returns the value with its number of fractional digits.
func parseDecimal(s string) (*big.Rat, int, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if !decimalPattern.MatchString(s) {
		return nil, 0, false
	}

	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, 0, false
	}
	if neg {
		r.Neg(r)
	}

	scale := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		scale = len(s) - i - 1
	}
	return r, scale, true
}

// Load reads a CSV file with a header row into a dataset
func Load(path string) (*model.TabularDataset, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, goerr.Wrap(model.ErrTableNotFound, "tabular source does not exist", goerr.V("path", path))
		}
		return nil, goerr.Wrap(err, "failed to open tabular source", goerr.V("path", path))
	}
	defer func() { _ = f.Close() }()

	ds, err := Parse(f)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse tabular source", goerr.V("path", path))
	}
	ds.Path = path
	return ds, nil
}

// Parse reads CSV content with a header row
func Parse(r io.Reader) (*model.TabularDataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, goerr.New("tabular source has no header row")
		}
		return nil, goerr.Wrap(err, "failed to read header row")
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			return nil, goerr.New("empty column name", goerr.V("position", i))
		}
		if seen[h] {
			return nil, goerr.New("duplicate column name", goerr.V(model.ColumnKey, h))
		}
		seen[h] = true
		columns[i] = h
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read rows")
	}

	ds := model.NewTabularDataset("", columns, rows)
	for i, col := range columns {
		numeric := true
		nonEmpty := 0
		scale := 0
		for _, row := range rows {
			cell := strings.TrimSpace(row[i])
			if cell == "" {
				continue
			}
			nonEmpty++
			_, s, ok := parseDecimal(cell)
			if !ok {
				numeric = false
				break
			}
			scale = max(scale, s)
		}
		ds.Numeric[col] = numeric && nonEmpty > 0
		if ds.Numeric[col] {
			ds.Scale[col] = scale
		}
	}

	return ds, nil
}
