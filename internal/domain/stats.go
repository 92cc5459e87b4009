package domain

import (
	"fmt"
	"strings"
)

// ServerSnapshot holds a consistent view of one server's counters.
type ServerSnapshot struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Sent           int64   `json:"sent"`
	CurrentPercent float64 `json:"current_percent"`
	TargetPercent  float64 `json:"target_percent"`
}

// GroupSnapshot holds a consistent view of one group's counters.
type GroupSnapshot struct {
	Name    string           `json:"name"`
	Total   int64            `json:"total"`
	Servers []ServerSnapshot `json:"servers"`
}

// Snapshot returns per-group selection statistics. It is taken under the
// same mutex that serializes selection, so counters are never observed
// mid-update. Percentages are group-local: a server's current share is
// its count over the group total, its target share its weight over the
// group weight sum; empty totals render as 0.0.
func (r *Registry) Snapshot() []GroupSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshots := make([]GroupSnapshot, 0, len(r.groups))
	for _, g := range r.groups {
		var totalSent, totalWeight int64
		for _, s := range g.Servers {
			totalSent += s.sent
			totalWeight += int64(s.Weight)
		}

		gs := GroupSnapshot{
			Name:    g.Name,
			Total:   totalSent,
			Servers: make([]ServerSnapshot, 0, len(g.Servers)),
		}
		for _, s := range g.Servers {
			ss := ServerSnapshot{
				Name:    s.Name,
				Address: s.Address,
				Sent:    s.sent,
			}
			if totalSent > 0 {
				ss.CurrentPercent = float64(s.sent) / float64(totalSent) * 100
			}
			if totalWeight > 0 {
				ss.TargetPercent = float64(s.Weight) / float64(totalWeight) * 100
			}
			gs.Servers = append(gs.Servers, ss)
		}
		snapshots = append(snapshots, gs)
	}

	return snapshots
}

// FormatReport renders group snapshots as the operator-facing usage
// table printed on shutdown:
//
//	Group good
//	  Name          # Sent |  curr. % / target %
//	    mx1              5 |  41.6667 /  40.0000
func FormatReport(snapshots []GroupSnapshot) string {
	var b strings.Builder
	for i, g := range snapshots {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Group %s\n", g.Name)
		b.WriteString("  Name          # Sent |  curr. % / target %\n")
		for _, s := range g.Servers {
			fmt.Fprintf(&b, "    %-10s %7d | %8.4f / %8.4f\n", s.Name, s.Sent, s.CurrentPercent, s.TargetPercent)
		}
	}
	return b.String()
}
