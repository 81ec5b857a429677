package wager

import (
	cryptorand "crypto/rand"

	"github.com/coinduel/backend/internal/modules/wager/domain"
)

// RandomSource draws the coin flip outcome. The draw must be uniform and
// unpredictable to both participants - neither side's input goes into it.
type RandomSource interface {
	DrawBinary() domain.Side
}

type CryptoRandomSource struct{}

var _ RandomSource = CryptoRandomSource{}

func (CryptoRandomSource) DrawBinary() domain.Side {
	var b [1]byte
	if _, err := cryptorand.Read(b[:]); err != nil {
		// crypto/rand failing means the process has bigger problems.
		panic(err)
	}

	if b[0]&1 == 0 {
		return domain.SideHeads
	}

	return domain.SideTails
}
