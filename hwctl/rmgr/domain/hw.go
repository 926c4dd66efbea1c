package domain

// Limites do hardware (input system 2401 e display controller Merrifield).
const (
	NumCSIRXBackends  = 3
	MaxLUTEntries     = 16
	DefaultLUTEntries = 4

	MaxIBufBytes     = 0x8000
	MaxIBufHandles   = 24
	DefaultIBufAlign = 32

	NumDMAIDs      = 1
	MaxDMAChannels = 8

	NumStream2MMIO = 3

	NumCSIPorts  = 3
	MaxSPThreads = 5

	DefaultFlipDepth = 4
	MaxFlipDepth     = 16
)

// MaxSIDs é o número de SIDs por instância de stream2mmio.
var MaxSIDs = [NumStream2MMIO]int{8, 4, 4}
