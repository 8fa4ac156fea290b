package frame

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sessions(t *testing.T, rows ...Row) *Frame {
	t.Helper()
	return mustFrame(t, []string{"subject_id", "visit_date"}, rows...)
}

func questionnaires(t *testing.T, rows ...Row) *Frame {
	t.Helper()
	return mustFrame(t, []string{"subject_id", "end_date", "score"}, rows...)
}

func offsetValues(t *testing.T, f *Frame) []any {
	t.Helper()
	values, err := f.Column("offset_days")
	require.NoError(t, err)
	return values
}

func TestMerge_Inner(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100002", day(2021, 2, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 8), float64(10)},
	)

	out, err := Merge(left, right, []string{"subject_id"}, JoinInner)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
	assert.Equal(t, []string{"subject_id", "visit_date", "end_date", "score"}, out.Columns())
}

func TestMerge_LeftKeepsUnmatched(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100002", day(2021, 2, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 8), float64(10)},
	)

	out, err := Merge(left, right, []string{"subject_id"}, JoinLeft)
	require.NoError(t, err)
	require.Equal(t, 2, out.NumRows())

	v, err := out.Value(1, "end_date")
	require.NoError(t, err)
	assert.Nil(t, v)
	v, err = out.Value(1, "score")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestMerge_CollidingColumnRenamed(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := mustFrame(t, []string{"subject_id", "visit_date"},
		Row{"100001", day(2021, 1, 12)},
	)

	out, err := Merge(left, right, []string{"subject_id"}, JoinLeft)
	require.NoError(t, err)
	assert.Equal(t, []string{"subject_id", "visit_date", "visit_date_right"}, out.Columns())
}

func TestMerge_MissingKey(t *testing.T) {
	left := sessions(t)
	right := questionnaires(t)
	_, err := Merge(left, right, []string{"nope"}, JoinInner)
	assert.Error(t, err)
}

func TestFuzzyJoinDate_UniqueClosestWins(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 8), float64(1)},  // offset -2
		Row{"100001", day(2021, 1, 12), float64(2)}, // offset +2
		Row{"100001", day(2021, 1, 9), float64(3)},  // offset -1, best
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, []any{float64(-1)}, offsetValues(t, out))
	score, err := out.Value(0, "score")
	require.NoError(t, err)
	assert.Equal(t, float64(3), score)
}

func TestFuzzyJoinDate_TieBothKept(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 8), float64(1)},  // offset -2
		Row{"100001", day(2021, 1, 12), float64(2)}, // offset +2, ties at |2|
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	// Both candidates share the minimal absolute offset; neither is an
	// arbitrary winner, so both survive.
	require.Equal(t, 2, out.NumRows())
	assert.Equal(t, []any{float64(-2), float64(2)}, offsetValues(t, out))
}

func TestFuzzyJoinDate_LeftRowWithoutMatchPassesThrough(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100002", day(2021, 2, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 9), float64(1)},
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	require.Equal(t, 2, out.NumRows())
	offsets := offsetValues(t, out)
	assert.Equal(t, float64(-1), offsets[0])
	assert.Nil(t, offsets[1])

	v, err := out.Value(1, "score")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestFuzzyJoinDate_InnerDropsUnmatched(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100002", day(2021, 2, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 9), float64(1)},
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinInner)
	require.NoError(t, err)
	assert.Equal(t, 1, out.NumRows())
}

func TestFuzzyJoinDate_NullDateRanksLast(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := questionnaires(t,
		Row{"100001", nil, float64(1)},              // no date, worst match
		Row{"100001", day(2021, 1, 15), float64(2)}, // offset +5
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	require.Equal(t, 1, out.NumRows())
	assert.Equal(t, []any{float64(5)}, offsetValues(t, out))
}

func TestFuzzyJoinDate_AllNullOffsetsKept(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := questionnaires(t,
		Row{"100001", nil, float64(1)},
		Row{"100001", nil, float64(2)},
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	// With no real date anywhere in the group every candidate ties.
	assert.Equal(t, 2, out.NumRows())
}

func TestFuzzyJoinDate_SubDayPrecision(t *testing.T) {
	left := sessions(t, Row{"100001", day(2021, 1, 10)})
	right := questionnaires(t,
		Row{"100001", time.Date(2021, 1, 10, 12, 0, 0, 0, time.UTC), float64(1)},
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	assert.Equal(t, []any{0.5}, offsetValues(t, out))
}

func TestFuzzyJoinDate_LeftCountPreservedWithoutTies(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100001", day(2021, 6, 10)},
		Row{"100002", day(2021, 2, 1)},
		Row{"100003", day(2021, 3, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 9), float64(1)},
		Row{"100001", day(2021, 6, 20), float64(2)},
		Row{"100002", day(2021, 1, 25), float64(3)},
	)

	out, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)
	assert.Equal(t, left.NumRows(), out.NumRows())
}

func TestFuzzyJoinDate_Deterministic(t *testing.T) {
	left := sessions(t,
		Row{"100001", day(2021, 1, 10)},
		Row{"100002", day(2021, 2, 1)},
	)
	right := questionnaires(t,
		Row{"100001", day(2021, 1, 8), float64(1)},
		Row{"100001", day(2021, 1, 12), float64(2)},
		Row{"100002", day(2021, 2, 3), float64(3)},
	)

	first, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)
	second, err := FuzzyJoinDate(left.Copy(), right.Copy(), []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	require.NoError(t, err)

	require.Equal(t, first.NumRows(), second.NumRows())
	assert.Equal(t, offsetValues(t, first), offsetValues(t, second))
}

func TestFuzzyJoinDate_OffsetColumnCollision(t *testing.T) {
	left := mustFrame(t, []string{"subject_id", "visit_date", "offset_days"},
		Row{"100001", day(2021, 1, 10), nil},
	)
	right := questionnaires(t, Row{"100001", day(2021, 1, 9), float64(1)})

	_, err := FuzzyJoinDate(left, right, []string{"subject_id"},
		"visit_date", "end_date", "offset_days", JoinLeft)
	assert.Error(t, err)
}
