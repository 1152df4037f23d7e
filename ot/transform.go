package ot

// Transform rebases clientOps so that they can be applied to
// Apply(base, serverOps) instead of to base directly, producing the same
// intended edit with conflicts resolved by a server-wins policy.
//
// This is a deliberately restricted OT: it assumes every operation is
// single-character or otherwise non-overlapping at equal positions, which
// is exactly the shape DiffToOps produces. It buys TP1-like convergence
// for that shape, not the general TP1/TP2 guarantee — multi-character
// inserts coalesced at identical positions against overlapping deletes are
// outside what this algorithm was built to reconcile.
func Transform(clientOps, serverOps []Operation) []Operation {
	rebased := make([]Operation, 0, len(clientOps))
	ci, si := 0, 0
	offset := 0

	for ci < len(clientOps) && si < len(serverOps) {
		c := clientOps[ci]
		s := serverOps[si]

		switch {
		case c.Position < s.Position:
			rebased = append(rebased, shift(c, offset))
			ci++
		case c.Position > s.Position:
			offset += serverShift(s)
			si++
		default:
			switch {
			case c.Kind == Insert && s.Kind == Insert:
				rebased = append(rebased, shift(c, offset+len(s.Text)))
			case c.Kind == Delete && s.Kind == Delete:
				// Already removed by the server; drop the client op.
			default:
				rebased = append(rebased, shift(c, offset))
			}
			// s is consumed here exactly as it would be in the
			// c.Position > s.Position branch, so its effect on positions
			// to its right must fold into offset the same way — otherwise
			// a server op that collides with a client op at this position
			// loses its shift for every client op still to come.
			offset += serverShift(s)
			ci++
			si++
		}
	}

	for ; ci < len(clientOps); ci++ {
		rebased = append(rebased, shift(clientOps[ci], offset))
	}

	return rebased
}

func shift(op Operation, delta int) Operation {
	op.Position += delta
	return op
}

func serverShift(op Operation) int {
	switch op.Kind {
	case Insert:
		return len(op.Text)
	case Delete:
		return -op.Length
	default:
		return 0
	}
}
