package headers

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

type BlockLocator []*chainhash.Hash

// BlockLocator builds a sparse locator starting at from: the first ten
// ancestors one by one, then doubling the step each time, always ending with
// the checkpoint.
func (s *Store) BlockLocator(from chainhash.Hash) BlockLocator {
	rec, ok := s.headers[from]
	if !ok {
		cp := s.checkpoint
		return BlockLocator{&cp}
	}

	height := rec.Height - s.headers[s.checkpoint].Height
	var maxEntries uint8
	if height <= 12 {
		maxEntries = uint8(height) + 1
	} else {
		adjustedHeight := uint32(height) - 10
		maxEntries = 12 + fastLog2Floor(adjustedHeight)
	}
	locator := make(BlockLocator, 0, maxEntries)

	step := 1
	hash := from
	for {
		h := hash
		locator = append(locator, &h)
		if hash == s.checkpoint {
			break
		}

		ancestors := s.WalkBackward(hash, step+1)
		if len(ancestors) < step+1 {
			// Ran into the checkpoint or a hole; finish on the checkpoint.
			last := ancestors[len(ancestors)-1]
			if last != s.checkpoint {
				cp := s.checkpoint
				locator = append(locator, &cp)
				break
			}
			hash = last
			continue
		}
		hash = ancestors[step]

		if len(locator) > 10 {
			step *= 2
		}
	}

	return locator
}

var log2FloorMasks = []uint32{0xffff0000, 0xff00, 0xf0, 0xc, 0x2}

func fastLog2Floor(n uint32) uint8 {
	rv := uint8(0)
	exponent := uint8(16)
	for i := 0; i < 5; i++ {
		if n&log2FloorMasks[i] != 0 {
			rv += exponent
			n >>= exponent
		}
		exponent >>= 1
	}
	return rv
}
