package infra

import "math/bits"

// ownedBitmap marca quais índices de um arena de slots estão em uso.
// Não é thread-safe; o pool dono segura o lock.
type ownedBitmap struct {
	words []uint64
	n     int
	used  int
}

func newOwnedBitmap(n int) *ownedBitmap {
	return &ownedBitmap{words: make([]uint64, (n+63)/64), n: n}
}

// firstFree retorna o menor índice livre (first-fit).
func (b *ownedBitmap) firstFree() (int, bool) {
	for w, word := range b.words {
		if word == ^uint64(0) {
			continue
		}
		i := w*64 + bits.TrailingZeros64(^word)
		if i >= b.n {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func (b *ownedBitmap) isSet(i int) bool {
	if i < 0 || i >= b.n {
		return false
	}
	return b.words[i/64]&(1<<(uint(i)%64)) != 0
}

func (b *ownedBitmap) set(i int) {
	b.words[i/64] |= 1 << (uint(i) % 64)
	b.used++
}

func (b *ownedBitmap) clear(i int) {
	b.words[i/64] &^= 1 << (uint(i) % 64)
	b.used--
}

func (b *ownedBitmap) reset() {
	for i := range b.words {
		b.words[i] = 0
	}
	b.used = 0
}
