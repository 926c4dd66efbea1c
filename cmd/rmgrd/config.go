package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"hwctl-rmgr/hwctl/rmgr"
	"hwctl-rmgr/hwctl/rmgr/domain"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// fileConfig é o formato do arquivo YAML apontado por RMGR_CONFIG. Campos
// ausentes ficam com o padrão; variáveis de ambiente têm precedência.
type fileConfig struct {
	Listen string `yaml:"listen"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	ISYS struct {
		LUTLong        []int         `yaml:"lut_long"`
		LUTShort       []int         `yaml:"lut_short"`
		IBufSize       string        `yaml:"ibuf_size"`
		IBufHandles    int           `yaml:"ibuf_handles"`
		IBufAlign      string        `yaml:"ibuf_align"`
		DMAChannels    []int         `yaml:"dma_channels"`
		SIDs           []int         `yaml:"sids"`
		CSIPorts       int           `yaml:"csi_ports"`
		CSIThreads     int           `yaml:"csi_threads"`
		AcquireTimeout time.Duration `yaml:"acquire_timeout"`
		RetryEvery     time.Duration `yaml:"retry_every"`
	} `yaml:"isys"`

	Display struct {
		Pipes     int      `yaml:"pipes"`
		FlipDepth int      `yaml:"flip_depth"`
		RefreshHz *float64 `yaml:"refresh_hz"`
	} `yaml:"display"`

	Stats struct {
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		Prefix        string        `yaml:"prefix"`
		TTL           time.Duration `yaml:"ttl"`
		Bucket        string        `yaml:"bucket"`
		TrackPipes    *bool         `yaml:"track_pipes"`
	} `yaml:"stats"`
}

type config struct {
	listenAddr string
	logLevel   string
	logFormat  string
	retryAfter time.Duration

	rmgr rmgr.Config

	statsRedisAddr     string
	statsRedisPassword string
	statsRedisDB       int
	statsPrefix        string
	statsTTL           time.Duration
	statsBucket        string
	statsTrackPipes    bool
}

func readConfig() (config, error) {
	var fc fileConfig
	if path := os.Getenv("RMGR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return buildConfig(fc)
}

func buildConfig(fc fileConfig) (config, error) {
	def := rmgr.DefaultConfig()

	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", orString(fc.Listen, ":8080"))
	cfg.logLevel = getenvDefault("LOG_LEVEL", orString(fc.Log.Level, "info"))
	cfg.logFormat = getenvDefault("LOG_FORMAT", fc.Log.Format)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", 1*time.Second)

	r := &cfg.rmgr
	r.LUTLong = getenvIntsDefault("LUT_LONG", orInts(fc.ISYS.LUTLong, def.LUTLong))
	r.LUTShort = getenvIntsDefault("LUT_SHORT", orInts(fc.ISYS.LUTShort, def.LUTShort))

	ibufSize, err := getenvBytesDefault("IBUF_SIZE", fc.ISYS.IBufSize, int64(def.IBuf.Size))
	if err != nil {
		return config{}, err
	}
	ibufAlign, err := getenvBytesDefault("IBUF_ALIGN", fc.ISYS.IBufAlign, int64(def.IBuf.Align))
	if err != nil {
		return config{}, err
	}
	r.IBuf.Size = uint32(ibufSize)
	r.IBuf.Align = uint32(ibufAlign)
	r.IBuf.MaxHandles = getenvIntDefault("IBUF_HANDLES", orInt(fc.ISYS.IBufHandles, def.IBuf.MaxHandles))

	r.DMAChannels = getenvIntsDefault("DMA_CHANNELS", orInts(fc.ISYS.DMAChannels, def.DMAChannels))
	r.SIDs = getenvIntsDefault("SIDS", orInts(fc.ISYS.SIDs, def.SIDs))
	r.CSIPorts = getenvIntDefault("CSI_PORTS", orInt(fc.ISYS.CSIPorts, def.CSIPorts))
	r.CSIThreads = getenvIntDefault("CSI_THREADS", orInt(fc.ISYS.CSIThreads, def.CSIThreads))
	r.AcquireTimeout = getenvDurationDefault("ACQUIRE_TIMEOUT", fc.ISYS.AcquireTimeout)
	r.RetryEvery = getenvDurationDefault("RETRY_EVERY", orDuration(fc.ISYS.RetryEvery, def.RetryEvery))

	r.Pipes = getenvIntDefault("PIPES", orInt(fc.Display.Pipes, def.Pipes))
	r.FlipDepth = getenvIntDefault("FLIP_DEPTH", orInt(fc.Display.FlipDepth, def.FlipDepth))
	refresh := def.RefreshHz
	if fc.Display.RefreshHz != nil {
		refresh = *fc.Display.RefreshHz
	}
	r.RefreshHz = getenvFloatDefault("REFRESH_HZ", refresh)

	cfg.statsRedisAddr = getenvDefault("STATS_REDIS_ADDR", fc.Stats.RedisAddr)
	cfg.statsRedisPassword = getenvDefault("STATS_REDIS_PASSWORD", fc.Stats.RedisPassword)
	cfg.statsRedisDB = getenvIntDefault("STATS_REDIS_DB", fc.Stats.RedisDB)
	cfg.statsPrefix = getenvDefault("STATS_PREFIX", orString(fc.Stats.Prefix, "rmgr:stats"))
	cfg.statsTTL = getenvDurationDefault("STATS_TTL", orDuration(fc.Stats.TTL, 24*time.Hour))
	cfg.statsBucket = getenvDefault("STATS_BUCKET", orString(fc.Stats.Bucket, "minute"))
	trackPipes := true
	if fc.Stats.TrackPipes != nil {
		trackPipes = *fc.Stats.TrackPipes
	}
	cfg.statsTrackPipes = getenvBoolDefault("STATS_TRACK_PIPES", trackPipes)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

// validate cobre só o que o rmgr.New não cobre; capacidades são checadas
// pelos próprios pools.
func (c config) validate() error {
	if strings.TrimSpace(c.listenAddr) == "" {
		return errors.New("LISTEN_ADDR must not be empty")
	}
	if c.rmgr.IBuf.Size > domain.MaxIBufBytes {
		return fmt.Errorf("IBUF_SIZE %s above the hardware maximum of %s",
			units.BytesSize(float64(c.rmgr.IBuf.Size)), units.BytesSize(domain.MaxIBufBytes))
	}
	switch c.logFormat {
	case "", "json", "text", "color":
	default:
		return fmt.Errorf("LOG_FORMAT %q must be json, text or color", c.logFormat)
	}
	if c.rmgr.AcquireTimeout < 0 {
		return errors.New("ACQUIRE_TIMEOUT must be >= 0")
	}
	if c.statsBucket != "minute" && c.statsBucket != "" && c.statsBucket != "none" {
		return fmt.Errorf("STATS_BUCKET %q must be minute or none", c.statsBucket)
	}
	return nil
}

func orString(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func orInt(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func orInts(v, def []int) []int {
	if len(v) > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return def
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// getenvIntsDefault lê uma lista separada por vírgula ("4,4,2").
func getenvIntsDefault(k string, def []int) []int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		i, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return def
		}
		out = append(out, i)
	}
	return out
}

// getenvBytesDefault aceita tamanhos como "32KiB", "16k" ou "4096". A
// variável de ambiente vence o valor do arquivo.
func getenvBytesDefault(k, fileValue string, def int64) (int64, error) {
	v := os.Getenv(k)
	if v == "" {
		v = fileValue
	}
	if v == "" {
		return def, nil
	}
	n, err := units.RAMInBytes(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	if n <= 0 || n > int64(^uint32(0)) {
		return 0, fmt.Errorf("%s: %q out of range", k, v)
	}
	return n, nil
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
