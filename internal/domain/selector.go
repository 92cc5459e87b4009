package domain

// Select picks the next server from the pool using weighted round robin
// with deficit correction: the server furthest below its target share
// wins, so cumulative selection shares converge toward configured
// weights. The chosen server's counter is incremented before returning.
//
// Deficits are compared as cross-multiplied integers
// (weight*totalCount - sent*totalWeight) instead of floating-point
// shares, so exact ties really are exact and resolve deterministically
// to the server appearing earliest in the pool.
//
// Zero-weight servers are never selected unless the whole pool carries
// weight zero, in which case selection degrades to uniform round robin.
// Returns nil only for an empty pool.
func (r *Registry) Select(pool []*Server) *Server {
	if len(pool) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var totalWeight, totalCount int64
	for _, s := range pool {
		totalWeight += int64(s.Weight)
		totalCount += s.sent
	}

	var selected *Server
	switch {
	case totalWeight == 0:
		// Uniform round robin among all-zero-weight servers: the least
		// selected wins, earliest in pool order on ties.
		for _, s := range pool {
			if selected == nil || s.sent < selected.sent {
				selected = s
			}
		}
	case totalCount == 0:
		// No selection has happened yet, so every observed share is
		// zero and each deficit equals its target share: the largest
		// weight wins, earliest in pool order on ties.
		for _, s := range pool {
			if s.Weight == 0 {
				continue
			}
			if selected == nil || int64(s.Weight) > int64(selected.Weight) {
				selected = s
			}
		}
	default:
		var best int64
		for _, s := range pool {
			if s.Weight == 0 {
				continue
			}
			deficit := int64(s.Weight)*totalCount - s.sent*totalWeight
			if selected == nil || deficit > best {
				selected = s
				best = deficit
			}
		}
	}

	selected.sent++
	return selected
}
