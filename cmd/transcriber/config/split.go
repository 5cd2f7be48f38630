package config

import (
	"fmt"
	"os"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/segment"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/silence"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/turns"
)

type SilenceDetector string

const (
	SilenceDetectorEnergy SilenceDetector = "energy"
	SilenceDetectorVAD    SilenceDetector = "vad"

	SilenceDetectorDefault = SilenceDetectorEnergy
)

func (d SilenceDetector) IsValid() bool {
	switch d {
	case SilenceDetectorEnergy, SilenceDetectorVAD:
		return true
	default:
		return false
	}
}

type SplitConfig struct {
	Silence   silence.Options
	Detector  SilenceDetector
	Format    segment.Format
	OutputDir string
	ModelsDir string
}

// NewSplitConfig returns a config with the default silence options that keeps
// the bordering silence of each segment. SetDefaults does not touch the
// silence options, so explicit zeros are left for IsValid to reject.
func NewSplitConfig() SplitConfig {
	opts := silence.Options{KeepSilence: true}
	opts.SetDefaults()
	return SplitConfig{
		Silence: opts,
	}
}

func (cfg SplitConfig) IsValid() error {
	if cfg == (SplitConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if err := cfg.Silence.IsValid(); err != nil {
		return err
	}

	if !cfg.Detector.IsValid() {
		return fmt.Errorf("Detector value is not valid")
	}

	if !cfg.Format.IsValid() {
		return fmt.Errorf("Format value is not valid")
	}

	return nil
}

func (cfg *SplitConfig) SetDefaults() {
	if cfg.Detector == "" {
		cfg.Detector = SilenceDetectorDefault
	}

	if cfg.Format == "" {
		cfg.Format = segment.FormatDefault
	}

	if cfg.ModelsDir == "" {
		cfg.ModelsDir = ModelsDirDefault
	}
}

func (cfg SplitConfig) ToEnv() []string {
	if cfg == (SplitConfig{}) {
		return nil
	}

	return []string{
		fmt.Sprintf("MIN_SILENCE_MS=%d", cfg.Silence.MinSilenceMs),
		fmt.Sprintf("SILENCE_THRESH_DB=%g", cfg.Silence.SilenceThreshDB),
		fmt.Sprintf("SILENCE_THRESH_RELATIVE=%t", cfg.Silence.RelativeThresh),
		fmt.Sprintf("KEEP_SILENCE=%t", cfg.Silence.KeepSilence),
		fmt.Sprintf("KEEP_SILENCE_MS=%d", cfg.Silence.KeepSilenceMs),
		fmt.Sprintf("SEGMENT_FORMAT=%s", cfg.Format),
		fmt.Sprintf("SILENCE_DETECTOR=%s", cfg.Detector),
		fmt.Sprintf("OUTPUT_DIR=%s", cfg.OutputDir),
		fmt.Sprintf("MODELS_DIR=%s", cfg.ModelsDir),
	}
}

func (cfg SplitConfig) ToMap() map[string]any {
	if cfg == (SplitConfig{}) {
		return nil
	}

	return map[string]any{
		"min_silence_ms":          cfg.Silence.MinSilenceMs,
		"silence_thresh_db":       cfg.Silence.SilenceThreshDB,
		"silence_thresh_relative": cfg.Silence.RelativeThresh,
		"keep_silence":            cfg.Silence.KeepSilence,
		"keep_silence_ms":         cfg.Silence.KeepSilenceMs,
		"seek_step_ms":            cfg.Silence.SeekStepMs,
		"segment_format":          cfg.Format,
		"silence_detector":        cfg.Detector,
		"output_dir":              cfg.OutputDir,
		"models_dir":              cfg.ModelsDir,
	}
}

// FromMap sets the fields present in m, leaving the others untouched.
func (cfg *SplitConfig) FromMap(m map[string]any) *SplitConfig {
	if format, ok := m["segment_format"].(string); ok {
		cfg.Format = segment.Format(format)
	} else if format, ok := m["segment_format"].(segment.Format); ok {
		cfg.Format = format
	}
	if det, ok := m["silence_detector"].(string); ok {
		cfg.Detector = SilenceDetector(det)
	} else if det, ok := m["silence_detector"].(SilenceDetector); ok {
		cfg.Detector = det
	}

	setInt(m, "min_silence_ms", &cfg.Silence.MinSilenceMs)
	setFloat(m, "silence_thresh_db", &cfg.Silence.SilenceThreshDB)
	setBool(m, "silence_thresh_relative", &cfg.Silence.RelativeThresh)
	setBool(m, "keep_silence", &cfg.Silence.KeepSilence)
	setInt(m, "keep_silence_ms", &cfg.Silence.KeepSilenceMs)
	setInt(m, "seek_step_ms", &cfg.Silence.SeekStepMs)
	setString(m, "output_dir", &cfg.OutputDir)
	setString(m, "models_dir", &cfg.ModelsDir)

	return cfg
}

// FromEnv overrides the fields whose variables are set.
func (cfg *SplitConfig) FromEnv() error {
	if val := os.Getenv("SEGMENT_FORMAT"); val != "" {
		cfg.Format = segment.Format(val)
	}
	if val := os.Getenv("SILENCE_DETECTOR"); val != "" {
		cfg.Detector = SilenceDetector(val)
	}

	envString("OUTPUT_DIR", &cfg.OutputDir)
	envString("MODELS_DIR", &cfg.ModelsDir)

	if err := envInt("MIN_SILENCE_MS", &cfg.Silence.MinSilenceMs); err != nil {
		return err
	}
	if err := envFloat("SILENCE_THRESH_DB", &cfg.Silence.SilenceThreshDB); err != nil {
		return err
	}
	if err := envBool("SILENCE_THRESH_RELATIVE", &cfg.Silence.RelativeThresh); err != nil {
		return err
	}
	if err := envBool("KEEP_SILENCE", &cfg.Silence.KeepSilence); err != nil {
		return err
	}

	return envInt("KEEP_SILENCE_MS", &cfg.Silence.KeepSilenceMs)
}

type TurnsConfig struct {
	Turns     turns.Options
	OutputDir string
}

func (cfg TurnsConfig) IsValid() error {
	if cfg == (TurnsConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	return cfg.Turns.IsValid()
}

// NewTurnsConfig returns a config with the default turn options. Options set
// to zero afterwards are rejected by IsValid.
func NewTurnsConfig() TurnsConfig {
	var cfg TurnsConfig
	cfg.Turns.SetDefaults()
	return cfg
}

func (cfg TurnsConfig) ToEnv() []string {
	if cfg == (TurnsConfig{}) {
		return nil
	}

	return []string{
		fmt.Sprintf("TURNS_NUM_SPEAKERS=%d", cfg.Turns.NumSpeakers),
		fmt.Sprintf("TURNS_FRAME_MS=%d", cfg.Turns.FrameMs),
		fmt.Sprintf("TURNS_HOP_MS=%d", cfg.Turns.HopMs),
		fmt.Sprintf("TURNS_NUM_MFCC=%d", cfg.Turns.NumMFCC),
		fmt.Sprintf("OUTPUT_DIR=%s", cfg.OutputDir),
	}
}

func (cfg TurnsConfig) ToMap() map[string]any {
	if cfg == (TurnsConfig{}) {
		return nil
	}

	return map[string]any{
		"turns_num_speakers": cfg.Turns.NumSpeakers,
		"turns_frame_ms":     cfg.Turns.FrameMs,
		"turns_hop_ms":       cfg.Turns.HopMs,
		"turns_num_mfcc":     cfg.Turns.NumMFCC,
		"output_dir":         cfg.OutputDir,
	}
}

// FromMap sets the fields present in m, leaving the others untouched.
func (cfg *TurnsConfig) FromMap(m map[string]any) *TurnsConfig {
	setInt(m, "turns_num_speakers", &cfg.Turns.NumSpeakers)
	setInt(m, "turns_frame_ms", &cfg.Turns.FrameMs)
	setInt(m, "turns_hop_ms", &cfg.Turns.HopMs)
	setInt(m, "turns_num_mfcc", &cfg.Turns.NumMFCC)
	setString(m, "output_dir", &cfg.OutputDir)

	return cfg
}

// FromEnv overrides the fields whose variables are set.
func (cfg *TurnsConfig) FromEnv() error {
	envString("OUTPUT_DIR", &cfg.OutputDir)

	if err := envInt("TURNS_NUM_SPEAKERS", &cfg.Turns.NumSpeakers); err != nil {
		return err
	}
	if err := envInt("TURNS_FRAME_MS", &cfg.Turns.FrameMs); err != nil {
		return err
	}
	if err := envInt("TURNS_HOP_MS", &cfg.Turns.HopMs); err != nil {
		return err
	}

	return envInt("TURNS_NUM_MFCC", &cfg.Turns.NumMFCC)
}
