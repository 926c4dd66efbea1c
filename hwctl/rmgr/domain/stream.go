package domain

import "time"

// StreamFormat é o formato de entrada de um stream de captura.
type StreamFormat string

const (
	FormatYUV420_8_Legacy StreamFormat = "yuv420_8_legacy"
	FormatYUV420_8        StreamFormat = "yuv420_8"
	FormatYUV420_10       StreamFormat = "yuv420_10"
	FormatYUV420_16       StreamFormat = "yuv420_16"
	FormatYUV422_8        StreamFormat = "yuv422_8"
	FormatYUV422_10       StreamFormat = "yuv422_10"
	FormatYUV422_16       StreamFormat = "yuv422_16"
	FormatRGB444          StreamFormat = "rgb444"
	FormatRGB555          StreamFormat = "rgb555"
	FormatRGB565          StreamFormat = "rgb565"
	FormatRGB666          StreamFormat = "rgb666"
	FormatRGB888          StreamFormat = "rgb888"
	FormatRAW6            StreamFormat = "raw6"
	FormatRAW7            StreamFormat = "raw7"
	FormatRAW8            StreamFormat = "raw8"
	FormatRAW10           StreamFormat = "raw10"
	FormatRAW12           StreamFormat = "raw12"
	FormatRAW14           StreamFormat = "raw14"
	FormatRAW16           StreamFormat = "raw16"
	FormatBinary8         StreamFormat = "binary8"
	FormatEmbedded        StreamFormat = "embedded"
	FormatUserDef1        StreamFormat = "user_def1"
	FormatUserDef2        StreamFormat = "user_def2"
	FormatUserDef3        StreamFormat = "user_def3"
	FormatUserDef4        StreamFormat = "user_def4"
	FormatUserDef5        StreamFormat = "user_def5"
	FormatUserDef6        StreamFormat = "user_def6"
	FormatUserDef7        StreamFormat = "user_def7"
	FormatUserDef8        StreamFormat = "user_def8"
)

// Predictor é o esquema de compressão MIPI.
type Predictor string

const (
	PredictorNone Predictor = "none"
	Predictor1    Predictor = "type1"
	Predictor2    Predictor = "type2"
)

// StreamDescr descreve um stream antes de criar: de onde vem e quanto
// recurso ele precisa.
type StreamDescr struct {
	Port      uint32       `json:"port"`
	Thread    uint32       `json:"thread"`
	Backend   uint32       `json:"backend"`
	Packet    PacketType   `json:"packet_type"`
	IBufSize  uint32       `json:"ibuf_size"`
	DMA       uint32       `json:"dma_id"`
	S2MMIO    uint32       `json:"stream2mmio_id"`
	Format    StreamFormat `json:"format"`
	Predictor Predictor    `json:"predictor"`
}

// StreamCfg é a configuração calculada de um stream já criado.
type StreamCfg struct {
	Port       uint32 `json:"port"`
	MIPIFormat uint32 `json:"mipi_format"`
	LUTEntry   uint32 `json:"lut_entry"`
	IBufAddr   uint32 `json:"ibuf_addr"`
	IBufSize   uint32 `json:"ibuf_size"`
	DMAChannel uint32 `json:"dma_channel"`
	SID        uint32 `json:"sid"`
}

// Stream é um stream de captura ativo e os recursos que ele segura.
type Stream struct {
	ID        string      `json:"id"`
	Descr     StreamDescr `json:"descr"`
	Slots     []Slot      `json:"slots"`
	Cfg       StreamCfg   `json:"cfg"`
	CreatedAt time.Time   `json:"created_at"`
}
