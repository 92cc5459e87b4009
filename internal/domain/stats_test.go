package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSnapshotPercentages pins the snapshot fixture: one selection in a
// 10/1/10/10 group reports 100% current share for the selected server
// and exact weight-ratio targets for everyone.
func TestSnapshotPercentages(t *testing.T) {
	t.Parallel()

	g := weightedGroup("bad", map[string]int{"mx4": 10, "mx5": 1, "mx6": 10, "mx7": 10}, "mx4", "mx5", "mx6", "mx7")
	r := newTestRegistry(t, []*Group{g}, nil, "", true)

	s := r.Select(g.Servers)
	require.NotNil(t, s)
	assert.Equal(t, "mx4", s.Name)

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	require.Len(t, snaps[0].Servers, 4)
	assert.Equal(t, int64(1), snaps[0].Total)

	byName := map[string]ServerSnapshot{}
	for _, ss := range snaps[0].Servers {
		byName[ss.Name] = ss
	}

	assert.Equal(t, int64(1), byName["mx4"].Sent)
	assert.InDelta(t, 100.0, byName["mx4"].CurrentPercent, 1e-9)
	assert.InDelta(t, 32.2581, byName["mx4"].TargetPercent, 1e-4)

	for _, name := range []string{"mx5", "mx6", "mx7"} {
		assert.Equal(t, int64(0), byName[name].Sent)
		assert.InDelta(t, 0.0, byName[name].CurrentPercent, 1e-9)
	}
	assert.InDelta(t, 3.2258, byName["mx5"].TargetPercent, 1e-4)
	assert.InDelta(t, 32.2581, byName["mx6"].TargetPercent, 1e-4)
	assert.InDelta(t, 32.2581, byName["mx7"].TargetPercent, 1e-4)
}

func TestSnapshotEmptyGroup(t *testing.T) {
	t.Parallel()

	g := weightedGroup("idle", map[string]int{"mx1": 40, "mx2": 60}, "mx1", "mx2")
	r := newTestRegistry(t, []*Group{g}, nil, "", true)

	snaps := r.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, int64(0), snaps[0].Total)
	for _, ss := range snaps[0].Servers {
		assert.InDelta(t, 0.0, ss.CurrentPercent, 1e-9)
	}
	assert.InDelta(t, 40.0, snaps[0].Servers[0].TargetPercent, 1e-9)
	assert.InDelta(t, 60.0, snaps[0].Servers[1].TargetPercent, 1e-9)
}

func TestFormatReport(t *testing.T) {
	t.Parallel()

	g := weightedGroup("good", map[string]int{"mx1": 40, "mx2": 40, "mx3": 20}, "mx1", "mx2", "mx3")
	r := newTestRegistry(t, []*Group{g}, nil, "", true)

	for i := 0; i < 12; i++ {
		r.Select(g.Servers)
	}

	report := FormatReport(r.Snapshot())
	assert.Contains(t, report, "Group good")
	assert.Contains(t, report, "# Sent |  curr. % / target %")
	assert.Contains(t, report, "mx1              5 |  41.6667 /  40.0000")
	assert.Contains(t, report, "mx2              5 |  41.6667 /  40.0000")
	assert.Contains(t, report, "mx3              2 |  16.6667 /  20.0000")

	lines := strings.Split(strings.TrimRight(report, "\n"), "\n")
	assert.Len(t, lines, 5)
}
