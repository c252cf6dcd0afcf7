package merge

import (
	"testing"

	"github.com/cerfacs-go/dsclim/internal/dsclim/dsclimerr"
	"github.com/cerfacs-go/dsclim/internal/dsclim/types"
	"github.com/stretchr/testify/require"
)

func TestMergeOrdersAcrossSeasons(t *testing.T) {
	allDays := []types.Day{{Index: 0}, {Index: 1}, {Index: 2}, {Index: 3}}
	winter := SeasonOutput{
		Season: "winter",
		Days:   []types.Day{{Index: 2}, {Index: 0}},
		Records: []types.AnalogRecord{
			{DownscaledDay: types.Day{Index: 2}},
			{DownscaledDay: types.Day{Index: 0}},
		},
	}
	summer := SeasonOutput{
		Season:  "summer",
		Days:    []types.Day{{Index: 1}},
		Records: []types.AnalogRecord{{DownscaledDay: types.Day{Index: 1}}},
	}

	out, err := Merge(allDays, []SeasonOutput{winter, summer})
	require.NoError(t, err)
	require.Len(t, out, 4)
	require.NotNil(t, out[0].Analog)
	require.NotNil(t, out[1].Analog)
	require.NotNil(t, out[2].Analog)
	require.Nil(t, out[3].Analog) // day 3 belongs to no season
	require.Equal(t, 0, out[0].Day.Index)
	require.Equal(t, 3, out[3].Day.Index)
}

func TestMergeDetectsOverlap(t *testing.T) {
	allDays := []types.Day{{Index: 0}}
	a := SeasonOutput{Season: "a", Days: []types.Day{{Index: 0}}, Records: []types.AnalogRecord{{}}}
	b := SeasonOutput{Season: "b", Days: []types.Day{{Index: 0}}, Records: []types.AnalogRecord{{}}}

	_, err := Merge(allDays, []SeasonOutput{a, b})
	require.Error(t, err)
	class, ok := dsclimerr.As(err)
	require.True(t, ok)
	require.Equal(t, dsclimerr.ClassOverlappingSeasons, class)
}
