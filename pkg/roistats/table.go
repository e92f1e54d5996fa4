package roistats

import (
	"fmt"
	"sort"

	"mdroistats/internal/models"
)

// Statistic selects the column a ranking query orders by
type Statistic int

const (
	StatMean Statistic = iota
	StatWinsorizedMean
	StatMedian
	StatIQR
	StatNVoxels
)

var statisticNames = [...]string{
	StatMean:           "mean",
	StatWinsorizedMean: "winsorized_mean",
	StatMedian:         "median",
	StatIQR:            "iqr",
	StatNVoxels:        "n_voxels",
}

// Statistics lists every rankable statistic
func Statistics() []Statistic {
	return []Statistic{StatMean, StatWinsorizedMean, StatMedian, StatIQR, StatNVoxels}
}

func (s Statistic) valid() bool {
	return s >= 0 && int(s) < len(statisticNames)
}

func (s Statistic) String() string {
	if !s.valid() {
		return fmt.Sprintf("Statistic(%d)", int(s))
	}
	return statisticNames[s]
}

// ParseStatistic maps a column name such as "winsorized_mean" to its
// Statistic
func ParseStatistic(name string) (Statistic, error) {
	for i, n := range statisticNames {
		if n == name {
			return Statistic(i), nil
		}
	}
	return 0, &UnknownStatisticError{Name: name}
}

// Value returns the selected statistic of rs
func (s Statistic) Value(rs RegionStatistics) (float64, error) {
	switch s {
	case StatMean:
		return rs.Mean, nil
	case StatWinsorizedMean:
		return rs.WinsorizedMean, nil
	case StatMedian:
		return rs.Median, nil
	case StatIQR:
		return rs.IQR, nil
	case StatNVoxels:
		return float64(rs.NVoxels), nil
	}
	return 0, &UnknownStatisticError{Name: s.String()}
}

// ResultTable is the immutable per-region result of one run. All accessors
// return copies.
type ResultTable struct {
	rows []RegionStatistics
}

// Assemble names every region from the catalog and orders the rows by
// ascending label. Labels missing from the catalog get a synthesized name.
func Assemble(rows []RegionStatistics, catalog models.RegionCatalog) *ResultTable {
	named := make([]RegionStatistics, len(rows))
	for i, rs := range rows {
		rs.Name = catalog.Name(rs.Label)
		named[i] = rs
	}
	return FromRows(named)
}

// FromRows builds a table from rows that already carry their names, for
// example rows read back from a store
func FromRows(rows []RegionStatistics) *ResultTable {
	t := &ResultTable{rows: make([]RegionStatistics, len(rows))}
	copy(t.rows, rows)
	sort.SliceStable(t.rows, func(i, j int) bool {
		return t.rows[i].Label < t.rows[j].Label
	})
	return t
}

// Len returns the number of regions in the table
func (t *ResultTable) Len() int {
	return len(t.rows)
}

// AllRegions returns every region in ascending label order
func (t *ResultTable) AllRegions() []RegionStatistics {
	out := make([]RegionStatistics, len(t.rows))
	copy(out, t.rows)
	return out
}

// ReliableRegions returns the reliable regions in ascending label order
func (t *ResultTable) ReliableRegions() []RegionStatistics {
	out := make([]RegionStatistics, 0, len(t.rows))
	for _, rs := range t.rows {
		if rs.Reliable {
			out = append(out, rs)
		}
	}
	return out
}

// Region looks up a single region by label
func (t *ResultTable) Region(label int) (RegionStatistics, bool) {
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].Label >= label })
	if i < len(t.rows) && t.rows[i].Label == label {
		return t.rows[i], true
	}
	return RegionStatistics{}, false
}

// TopN returns up to n reliable regions with the highest value of stat,
// ties broken by ascending label
func (t *ResultTable) TopN(stat Statistic, n int) ([]RegionStatistics, error) {
	return t.rank(stat, n, true)
}

// BottomN returns up to n reliable regions with the lowest value of stat,
// ties broken by ascending label
func (t *ResultTable) BottomN(stat Statistic, n int) ([]RegionStatistics, error) {
	return t.rank(stat, n, false)
}

func (t *ResultTable) rank(stat Statistic, n int, descending bool) ([]RegionStatistics, error) {
	if !stat.valid() {
		return nil, &UnknownStatisticError{Name: stat.String()}
	}

	type keyed struct {
		rs  RegionStatistics
		key float64
	}
	reliable := t.ReliableRegions()
	items := make([]keyed, len(reliable))
	for i, rs := range reliable {
		v, err := stat.Value(rs)
		if err != nil {
			return nil, err
		}
		items[i] = keyed{rs: rs, key: v}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.key != b.key {
			if descending {
				return a.key > b.key
			}
			return a.key < b.key
		}
		return a.rs.Label < b.rs.Label
	})

	if n < 0 {
		n = 0
	}
	if n > len(items) {
		n = len(items)
	}
	out := make([]RegionStatistics, n)
	for i := 0; i < n; i++ {
		out[i] = items[i].rs
	}
	return out, nil
}

// Summary counts reliable and excluded regions
type Summary struct {
	Total    int
	Reliable int
	Excluded int

	// ByReason counts excluded regions per exclusion reason
	ByReason map[ExclusionReason]int
}

// Summary reports how many regions passed quality control and why the
// others were excluded
func (t *ResultTable) Summary() Summary {
	s := Summary{Total: len(t.rows), ByReason: make(map[ExclusionReason]int)}
	for _, rs := range t.rows {
		if rs.Reliable {
			s.Reliable++
			continue
		}
		s.Excluded++
		s.ByReason[rs.ExclusionReason]++
	}
	return s
}
