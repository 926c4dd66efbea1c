package application

import (
	"fmt"

	"hwctl-rmgr/hwctl/rmgr/domain"
)

// Data types da tabela do MIPI CSI-2.
const (
	mipiEmbedded       = 0x12
	mipiYUV420_8       = 0x18
	mipiYUV420_10      = 0x19
	mipiYUV420_8Legacy = 0x1A
	mipiYUV422_8       = 0x1E
	mipiYUV422_10      = 0x1F
	mipiRGB444         = 0x20
	mipiRGB555         = 0x21
	mipiRGB565         = 0x22
	mipiRGB666         = 0x23
	mipiRGB888         = 0x24
	mipiRAW6           = 0x28
	mipiRAW7           = 0x29
	mipiRAW8           = 0x2A
	mipiRAW10          = 0x2B
	mipiRAW12          = 0x2C
	mipiRAW14          = 0x2D
	mipiRAW16          = 0x2E
	mipiUserDef1       = 0x30
)

var mipiByFormat = map[domain.StreamFormat]uint32{
	domain.FormatEmbedded:        mipiEmbedded,
	domain.FormatYUV420_8:        mipiYUV420_8,
	domain.FormatYUV420_10:       mipiYUV420_10,
	domain.FormatYUV420_8_Legacy: mipiYUV420_8Legacy,
	domain.FormatYUV422_8:        mipiYUV422_8,
	domain.FormatYUV422_10:       mipiYUV422_10,
	domain.FormatRGB444:          mipiRGB444,
	domain.FormatRGB555:          mipiRGB555,
	domain.FormatRGB565:          mipiRGB565,
	domain.FormatRGB666:          mipiRGB666,
	domain.FormatRGB888:          mipiRGB888,
	domain.FormatRAW6:            mipiRAW6,
	domain.FormatRAW7:            mipiRAW7,
	domain.FormatRAW8:            mipiRAW8,
	domain.FormatRAW10:           mipiRAW10,
	domain.FormatRAW12:           mipiRAW12,
	domain.FormatRAW14:           mipiRAW14,
	domain.FormatRAW16:           mipiRAW16,
	domain.FormatBinary8:         mipiUserDef1,
	domain.FormatUserDef1:        mipiUserDef1,
	domain.FormatUserDef2:        mipiUserDef1 + 1,
	domain.FormatUserDef3:        mipiUserDef1 + 2,
	domain.FormatUserDef4:        mipiUserDef1 + 3,
	domain.FormatUserDef5:        mipiUserDef1 + 4,
	domain.FormatUserDef6:        mipiUserDef1 + 5,
	domain.FormatUserDef7:        mipiUserDef1 + 6,
	domain.FormatUserDef8:        mipiUserDef1 + 7,
}

// com compressão o format type é a profundidade de bits do RAW
var compressedBits = map[domain.StreamFormat]uint32{
	domain.FormatRAW6:  6,
	domain.FormatRAW7:  7,
	domain.FormatRAW8:  8,
	domain.FormatRAW10: 10,
	domain.FormatRAW12: 12,
	domain.FormatRAW14: 14,
	domain.FormatRAW16: 16,
}

// FormatToMIPI traduz formato + compressão para o format type que o
// receptor espera. Formatos sem equivalente (ex.: YUV 16 bits) falham com
// ErrConfig.
func FormatToMIPI(format domain.StreamFormat, predictor domain.Predictor) (uint32, error) {
	switch predictor {
	case "", domain.PredictorNone:
		if v, ok := mipiByFormat[format]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("%w: format %q has no mipi data type", domain.ErrConfig, format)
	case domain.Predictor1, domain.Predictor2:
		if v, ok := compressedBits[format]; ok {
			return v, nil
		}
		return 0, fmt.Errorf("%w: format %q cannot be compressed", domain.ErrConfig, format)
	}
	return 0, fmt.Errorf("%w: unknown predictor %q", domain.ErrConfig, predictor)
}
