package block

import "strconv"

// Height is the ledger's block number, advanced by one per produced block.
// The verification pipeline uses it as its logical clock.
type Height uint64

func (h Height) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// SaturatingSub returns h-d, or 0 when d > h.
func (h Height) SaturatingSub(d uint64) Height {
	if uint64(h) < d {
		return 0
	}
	return h - Height(d)
}
