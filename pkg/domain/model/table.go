package model

// TabularDataset is an in-memory table loaded once from a structured file.
// Cells keep their original text so numeric aggregation can work at the
// precision the file was written with.
type TabularDataset struct {
	Path    string
	Columns []string
	Rows    [][]string

	// Numeric marks columns whose non-empty cells all parse as decimals
	Numeric map[string]bool
	// Scale is the largest number of fractional digits seen in a numeric column
	Scale map[string]int

	index map[string]int
}

// NewTabularDataset builds a dataset and its column lookup
func NewTabularDataset(path string, columns []string, rows [][]string) *TabularDataset {
	ds := &TabularDataset{
		Path:    path,
		Columns: columns,
		Rows:    rows,
		Numeric: make(map[string]bool, len(columns)),
		Scale:   make(map[string]int, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		ds.index[c] = i
	}
	return ds
}

// ColumnIndex returns the position of a column and whether it exists
func (x *TabularDataset) ColumnIndex(name string) (int, bool) {
	idx, ok := x.index[name]
	return idx, ok
}

// HasColumn reports whether the dataset has the named column
func (x *TabularDataset) HasColumn(name string) bool {
	_, ok := x.index[name]
	return ok
}
