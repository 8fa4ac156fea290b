package frame

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// JoinKind selects the relational join behavior for the hard keys.
type JoinKind string

const (
	JoinInner JoinKind = "inner"
	JoinLeft  JoinKind = "left"
)

const rightSuffix = "_right"

// Merge joins two frames on exact-match key columns. Result columns are the
// left columns followed by the non-key right columns; a right column whose
// name collides with a left column is suffixed with "_right". A left join
// emits unmatched left rows once with the right side null.
func Merge(left, right *Frame, on []string, how JoinKind) (*Frame, error) {
	merged, _, err := merge(left, right, on, how)
	return merged, err
}

// merge additionally reports how right columns were renamed in the output.
func merge(left, right *Frame, on []string, how JoinKind) (*Frame, map[string]string, error) {
	if how != JoinInner && how != JoinLeft {
		return nil, nil, fmt.Errorf("unsupported join kind %q", how)
	}
	for _, key := range on {
		if !left.HasColumn(key) {
			return nil, nil, fmt.Errorf("left frame is missing join key %q", key)
		}
		if !right.HasColumn(key) {
			return nil, nil, fmt.Errorf("right frame is missing join key %q", key)
		}
	}

	keySet := make(map[string]bool, len(on))
	for _, key := range on {
		keySet[key] = true
	}

	// Right data columns carried into the result, renamed on collision.
	rename := make(map[string]string)
	var rightCols []string
	for _, name := range right.cols {
		if keySet[name] {
			continue
		}
		outName := name
		if left.HasColumn(outName) {
			outName += rightSuffix
		}
		rename[name] = outName
		rightCols = append(rightCols, name)
	}

	outCols := left.Columns()
	for _, name := range rightCols {
		outCols = append(outCols, rename[name])
	}
	out, err := New(outCols)
	if err != nil {
		return nil, nil, err
	}

	// Index right rows by composite key, preserving row order within a key.
	rightByKey := make(map[string][]int)
	for i := range right.rows {
		key, ok := right.rowKey(i, on)
		if !ok {
			continue // null in a key column never matches
		}
		rightByKey[key] = append(rightByKey[key], i)
	}

	rightIdx := make([]int, len(rightCols))
	for i, name := range rightCols {
		rightIdx[i] = right.index[name]
	}

	for i := range left.rows {
		key, ok := left.rowKey(i, on)
		var matches []int
		if ok {
			matches = rightByKey[key]
		}
		if len(matches) == 0 {
			if how == JoinLeft {
				row := make(Row, len(outCols))
				copy(row, left.rows[i])
				out.rows = append(out.rows, row)
			}
			continue
		}
		for _, j := range matches {
			row := make(Row, 0, len(outCols))
			row = append(row, left.rows[i]...)
			for _, k := range rightIdx {
				row = append(row, right.rows[j][k])
			}
			out.rows = append(out.rows, row)
		}
	}

	return out, rename, nil
}

// rowKey builds a composite key from the named columns of row i.
// ok is false if any key value is null.
func (f *Frame) rowKey(i int, on []string) (string, bool) {
	var b strings.Builder
	for _, name := range on {
		v := f.rows[i][f.index[name]]
		if v == nil {
			return "", false
		}
		if t, isTime := v.(time.Time); isTime {
			b.WriteString(t.UTC().Format(time.RFC3339Nano))
		} else {
			fmt.Fprintf(&b, "%v", v)
		}
		b.WriteByte(0x1f)
	}
	return b.String(), true
}

// FuzzyJoinDate joins left to right on the hard keys, then keeps only the
// best date match per (hard keys, left date) group.
//
// Every candidate pair gets a signed offset in fractional days
// (right date minus left date) under offsetColumn. Candidates are ranked
// within their group by absolute offset using a min-rank-on-tie ordering:
// the smallest absolute offset ranks first, candidates sharing that exact
// minimum all rank first, and null offsets rank last. Only first-ranked
// rows are kept, so a true tie yields more than one row for its group.
// A group whose offsets are all null (e.g. an unmatched left row in a left
// join) keeps every row.
func FuzzyJoinDate(
	left, right *Frame,
	hardOn []string,
	fuzzyOnLeft, fuzzyOnRight string,
	offsetColumn string,
	how JoinKind,
) (*Frame, error) {
	if !left.HasColumn(fuzzyOnLeft) {
		return nil, fmt.Errorf("left frame is missing date column %q", fuzzyOnLeft)
	}
	if !right.HasColumn(fuzzyOnRight) {
		return nil, fmt.Errorf("right frame is missing date column %q", fuzzyOnRight)
	}

	candidates, rename, err := merge(left, right, hardOn, how)
	if err != nil {
		return nil, err
	}
	if candidates.HasColumn(offsetColumn) {
		return nil, fmt.Errorf("offset column %q already exists in the join result", offsetColumn)
	}

	leftDate := candidates.index[fuzzyOnLeft]
	rightDateName, ok := rename[fuzzyOnRight]
	if !ok {
		// fuzzyOnRight was a hard key; joining a date column exactly and
		// fuzzily at once is not meaningful.
		return nil, fmt.Errorf("date column %q cannot also be a hard key", fuzzyOnRight)
	}
	rightDate := candidates.index[rightDateName]

	// Offset in signed fractional days per candidate; nil when either side
	// is null.
	offsets := make([]any, len(candidates.rows))
	for i, row := range candidates.rows {
		lv, lok := row[leftDate].(time.Time)
		rv, rok := row[rightDate].(time.Time)
		if !lok || !rok {
			continue
		}
		offsets[i] = rv.Sub(lv).Hours() / 24
	}

	// Pass 1: minimal absolute offset per (hard keys, left date) group.
	groupOn := append(append([]string(nil), hardOn...), fuzzyOnLeft)
	minAbs := make(map[string]float64)
	for i := range candidates.rows {
		offset, isSet := offsets[i].(float64)
		if !isSet {
			continue
		}
		key := candidates.groupKey(i, groupOn)
		abs := math.Abs(offset)
		if cur, seen := minAbs[key]; !seen || abs < cur {
			minAbs[key] = abs
		}
	}

	// Pass 2: keep first-ranked rows, in candidate order.
	out, err := New(append(candidates.Columns(), offsetColumn))
	if err != nil {
		return nil, err
	}
	for i, row := range candidates.rows {
		key := candidates.groupKey(i, groupOn)
		best, hasBest := minAbs[key]
		if offset, isSet := offsets[i].(float64); isSet {
			if math.Abs(offset) != best {
				continue
			}
		} else if hasBest {
			// Null offsets rank behind any real match in the group.
			continue
		}
		kept := make(Row, 0, len(row)+1)
		kept = append(kept, row...)
		kept = append(kept, offsets[i])
		out.rows = append(out.rows, kept)
	}

	return out, nil
}

// groupKey is like rowKey but treats null as a distinct key value instead
// of a non-match, so unmatched left-join rows still form a group.
func (f *Frame) groupKey(i int, on []string) string {
	var b strings.Builder
	for _, name := range on {
		v := f.rows[i][f.index[name]]
		switch t := v.(type) {
		case nil:
			b.WriteString("\x00null")
		case time.Time:
			b.WriteString(t.UTC().Format(time.RFC3339Nano))
		default:
			fmt.Fprintf(&b, "%v", t)
		}
		b.WriteByte(0x1f)
	}
	return b.String()
}
