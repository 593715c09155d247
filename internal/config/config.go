package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Raikerian/narrmix/internal/apperrors"
	"github.com/Raikerian/narrmix/pkg/audio"
)

// AudioConfig stores the working and export format plus external tool paths.
type AudioConfig struct {
	SampleRate  int    `yaml:"sample_rate"`
	Channels    int    `yaml:"channels"`
	BitDepth    int    `yaml:"bit_depth"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`
}

// EnhancementConfig stores compressor, normalizer and codec check settings.
type EnhancementConfig struct {
	ThresholdDB  float64 `yaml:"threshold_db"`
	Ratio        float64 `yaml:"ratio"`
	AttackMS     float64 `yaml:"attack_ms"`
	ReleaseMS    float64 `yaml:"release_ms"`
	TargetPeakDB float64 `yaml:"target_peak_db"`
	// CodecCheck is "" (off) or "opus".
	CodecCheck  string `yaml:"codec_check"`
	OpusBitrate int    `yaml:"opus_bitrate"`
}

// PipelineConfig stores the per-unit processing options.
type PipelineConfig struct {
	SpeedAdjustmentEnabled   bool              `yaml:"speed_adjustment_enabled"`
	SpeedFactor              float64           `yaml:"speed_factor"`
	PreservePitch            bool              `yaml:"preserve_pitch"`
	HighQualityStretch       bool              `yaml:"high_quality_stretch"`
	PreFadeMaxMS             int               `yaml:"pre_fade_max_ms"`
	QualityRatioBounds       []float64         `yaml:"quality_ratio_bounds"`
	NarrationLevelDB         float64           `yaml:"narration_level_db"`
	MusicLevelDB             float64           `yaml:"music_level_db"`
	MusicLoop                bool              `yaml:"music_loop"`
	FadeOutMaxMS             int               `yaml:"fade_out_max_ms"`
	EnhancementEnabled       bool              `yaml:"enhancement_enabled"`
	Enhancement              EnhancementConfig `yaml:"enhancement"`
	DurationToleranceMS      float64           `yaml:"duration_tolerance_ms"`
	DurationFatalThresholdMS float64           `yaml:"duration_fatal_threshold_ms"`
}

// BatchConfig stores worker pool and filesystem settings.
type BatchConfig struct {
	Concurrency int    `yaml:"concurrency"`
	WorkDir     string `yaml:"work_dir"`
	OutputDir   string `yaml:"output_dir"`
}

// CacheConfig stores decoded clip cache sizes.
type CacheConfig struct {
	MusicClips int `yaml:"music_clips"`
}

// ReportConfig stores run history settings. An empty path disables history.
type ReportConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// Config stores the application configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Audio    AudioConfig    `yaml:"audio"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Batch    BatchConfig    `yaml:"batch"`
	Cache    CacheConfig    `yaml:"cache"`
	Report   ReportConfig   `yaml:"report"`
}

// Source tells LoadConfig where to read from and which overrides to apply
// after the file is parsed. Command-line flags arrive through Overrides.
type Source struct {
	Path      string
	Overrides []func(*Config)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			SampleRate:  audio.DefaultSampleRate,
			Channels:    audio.DefaultChannels,
			BitDepth:    audio.DefaultBitDepth,
			FFmpegPath:  "ffmpeg",
			FFprobePath: "ffprobe",
		},
		Pipeline: PipelineConfig{
			SpeedFactor:        1.0,
			PreservePitch:      true,
			HighQualityStretch: true,
			PreFadeMaxMS:       200,
			QualityRatioBounds: []float64{0.8, 1.2},
			NarrationLevelDB:   -12,
			MusicLevelDB:       -24,
			MusicLoop:          true,
			FadeOutMaxMS:       500,
			Enhancement: EnhancementConfig{
				ThresholdDB:  -18,
				Ratio:        2,
				AttackMS:     5,
				ReleaseMS:    100,
				TargetPeakDB: -1,
				OpusBitrate:  128000,
			},
			DurationToleranceMS:      1,
			DurationFatalThresholdMS: 300,
		},
		Batch: BatchConfig{
			Concurrency: 4,
			WorkDir:     os.TempDir(),
			OutputDir:   "output",
		},
		Cache: CacheConfig{
			MusicClips: 16,
		},
	}
}

// Load reads the YAML file at filePath over the defaults. An empty path
// yields the defaults.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	if filePath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	return cfg, nil
}

// LoadConfig loads the configuration described by src, applies overrides and
// validates the result.
func LoadConfig(src Source) (*Config, error) {
	cfg, err := Load(src.Path)
	if err != nil {
		return nil, err
	}

	for _, o := range src.Overrides {
		o(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects malformed options before any unit starts.
func (c *Config) Validate() error {
	p := c.Pipeline
	bad := func(format string, args ...any) error {
		return apperrors.InvalidParameter(format, args...).WithStage("config")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "":
	default:
		return bad("unknown log_level %q", c.LogLevel)
	}

	if p.SpeedFactor <= 0 {
		return bad("speed_factor must be positive, got %v", p.SpeedFactor)
	}
	if len(p.QualityRatioBounds) != 2 {
		return bad("quality_ratio_bounds needs [low, high], got %v", p.QualityRatioBounds)
	}
	if low, high := p.QualityRatioBounds[0], p.QualityRatioBounds[1]; low <= 0 || low > 1 || high < 1 {
		return bad("quality_ratio_bounds must satisfy 0 < low <= 1 <= high, got [%v, %v]", low, high)
	}
	if p.NarrationLevelDB <= p.MusicLevelDB {
		return bad("music_level_db (%v) must be below narration_level_db (%v)", p.MusicLevelDB, p.NarrationLevelDB)
	}
	if p.PreFadeMaxMS < 0 || p.FadeOutMaxMS < 0 {
		return bad("fade lengths must not be negative")
	}
	if p.DurationToleranceMS <= 0 {
		return bad("duration_tolerance_ms must be positive, got %v", p.DurationToleranceMS)
	}
	if p.DurationFatalThresholdMS <= p.DurationToleranceMS {
		return bad("duration_fatal_threshold_ms (%v) must exceed duration_tolerance_ms (%v)",
			p.DurationFatalThresholdMS, p.DurationToleranceMS)
	}

	e := p.Enhancement
	if e.Ratio < 1 {
		return bad("enhancement.ratio must be at least 1, got %v", e.Ratio)
	}
	if e.AttackMS <= 0 || e.ReleaseMS <= 0 {
		return bad("enhancement attack and release must be positive")
	}
	if e.TargetPeakDB > 0 {
		return bad("enhancement.target_peak_db must not exceed 0 dBFS, got %v", e.TargetPeakDB)
	}
	switch e.CodecCheck {
	case "", "opus":
	default:
		return bad("unknown enhancement.codec_check %q", e.CodecCheck)
	}

	if !audio.SupportedSampleRate(c.Audio.SampleRate) {
		return bad("unsupported sample_rate %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return bad("channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.BitDepth != 16 && c.Audio.BitDepth != 24 {
		return bad("bit_depth must be 16 or 24, got %d", c.Audio.BitDepth)
	}

	if c.Batch.Concurrency < 1 {
		return bad("batch.concurrency must be at least 1, got %d", c.Batch.Concurrency)
	}
	if c.Cache.MusicClips < 1 {
		return bad("cache.music_clips must be at least 1, got %d", c.Cache.MusicClips)
	}

	return nil
}

// Tolerance returns the reconciliation tolerance and fatal ceiling.
func (p PipelineConfig) Tolerance() (tolerance, fatal time.Duration) {
	return msToDuration(p.DurationToleranceMS), msToDuration(p.DurationFatalThresholdMS)
}

// PreFade returns the maximum fade applied before stretching.
func (p PipelineConfig) PreFade() time.Duration {
	return time.Duration(p.PreFadeMaxMS) * time.Millisecond
}

// FadeOut returns the maximum fade applied after mixing.
func (p PipelineConfig) FadeOut() time.Duration {
	return time.Duration(p.FadeOutMaxMS) * time.Millisecond
}

// Bounds returns the quality ratio window.
func (p PipelineConfig) Bounds() (low, high float64) {
	return p.QualityRatioBounds[0], p.QualityRatioBounds[1]
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
