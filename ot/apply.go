package ot

import "sort"

// Apply executes ops against content and returns the resulting string.
// ops are sorted by Position (stable, so equal-position ops keep their
// relative order) and then walked while tracking offset, the running
// delta between the edited and original length that every operation
// after the first needs added to its authored Position to land in the
// right place in the string being built.
//
// Apply never fails silently: a position or length that falls outside the
// content as offset by prior ops is a programmer error (a malformed
// operation list) and is reported as an *ErrOT, not swallowed.
func Apply(content string, ops []Operation) (string, error) {
	if len(ops) == 0 {
		return content, nil
	}

	sorted := make([]Operation, len(ops))
	copy(sorted, ops)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Position < sorted[j].Position
	})

	result := []byte(content)
	offset := 0
	for _, op := range sorted {
		pos := op.Position + offset
		switch op.Kind {
		case Retain:
			// Purely documentary: a retain never mutates result or offset.
			// Transform's server-wins rebasing lets a retain's range drift
			// relative to the content it ends up applied against — e.g. a
			// client retain over a character the server deleted keeps its
			// length and can run past the end of the shorter server
			// content — so a range check here would reject well-formed
			// merge output for a range that was never going to be touched.
		case Insert:
			if pos < 0 || pos > len(result) {
				return "", newOTError(op, "insert position out of range")
			}
			out := make([]byte, 0, len(result)+len(op.Text))
			out = append(out, result[:pos]...)
			out = append(out, op.Text...)
			out = append(out, result[pos:]...)
			result = out
			offset += len(op.Text)
		case Delete:
			if op.Length < 0 || pos < 0 || pos+op.Length > len(result) {
				return "", newOTError(op, "delete range out of bounds")
			}
			out := make([]byte, 0, len(result)-op.Length)
			out = append(out, result[:pos]...)
			out = append(out, result[pos+op.Length:]...)
			result = out
			offset -= op.Length
		default:
			return "", newOTError(op, "unknown operation kind")
		}
	}
	return string(result), nil
}

// MustApply is a test helper that panics instead of returning an error;
// it is never used outside _test.go files.
func MustApply(content string, ops []Operation) string {
	out, err := Apply(content, ops)
	if err != nil {
		panic(err)
	}
	return out
}
