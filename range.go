package sparsetile

import "fmt"

// Range is the half-open interval [Begin, End).
type Range struct {
	Begin uint64
	End   uint64
}

// Valid reports whether Begin <= End.
func (r Range) Valid() bool {
	return r.Begin <= r.End
}

// Len returns the number of integers in the range, or 0 if it is invalid.
func (r Range) Len() uint64 {
	if !r.Valid() {
		return 0
	}
	return r.End - r.Begin
}

// Contains reports whether x lies in [Begin, End).
func (r Range) Contains(x uint64) bool {
	return r.Begin <= x && x < r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Begin, r.End)
}
