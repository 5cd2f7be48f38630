package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/transcribe"
)

var languageRE = regexp.MustCompile(`^[a-zA-Z]{2,3}([_-][a-zA-Z]{2,4})?$`)

const (
	// defaults
	TranscribeAPIDefault    = TranscribeAPIAssemblyAI
	LanguageDefault         = "pt"
	SpeakersExpectedDefault = 2
	TimeoutDefault          = 2 * time.Hour
	ModelsDirDefault        = "./models"
	WhisperServerURLDefault = "http://localhost:8387"
	PyannoteURLDefault      = "http://localhost:8388"
)

type TranscribeAPI string

const (
	TranscribeAPIAssemblyAI    TranscribeAPI = "assemblyai"
	TranscribeAPIWhisperCPP    TranscribeAPI = "whisper.cpp"
	TranscribeAPIWhisperServer TranscribeAPI = "whisper-server"
	TranscribeAPIAzure         TranscribeAPI = "azure"
)

func (a TranscribeAPI) IsValid() bool {
	switch a {
	case TranscribeAPIAssemblyAI, TranscribeAPIWhisperCPP, TranscribeAPIWhisperServer, TranscribeAPIAzure:
		return true
	default:
		return false
	}
}

// IsLocal reports whether the API only recognizes speech and needs a separate
// diarization step.
func (a TranscribeAPI) IsLocal() bool {
	return a != TranscribeAPIAssemblyAI
}

// DefaultModel returns the model used when none is configured. Azure picks
// its model from the locale.
func (a TranscribeAPI) DefaultModel() string {
	switch a {
	case TranscribeAPIAssemblyAI:
		return "best"
	case TranscribeAPIWhisperCPP, TranscribeAPIWhisperServer:
		return "large-v3"
	default:
		return ""
	}
}

type TranscribeConfig struct {
	TranscribeAPI    TranscribeAPI
	Model            string
	Language         string
	SpeakersExpected int

	// PaddingMs is the silence added around the audio before recognition.
	// Zero disables padding.
	PaddingMs int
	PadMode   audio.PadMode

	// output config
	OutputDir string
	Output    string
	NoMerge   bool
	VTT       bool
	WebVTT    transcribe.WebVTTOptions

	TempDir    string
	Timeout    time.Duration
	NumThreads int

	WhisperServerURL string
	PyannoteURL      string
	ModelsDir        string
}

// NewTranscribeConfig returns a config holding the defaults for fields where
// zero is a meaningful value. SetDefaults leaves those fields alone so that an
// explicit zero reaches IsValid.
func NewTranscribeConfig() TranscribeConfig {
	return TranscribeConfig{
		SpeakersExpected: SpeakersExpectedDefault,
		PaddingMs:        audio.PaddingDefaultMs,
	}
}

func (cfg TranscribeConfig) IsValid() error {
	if cfg == (TranscribeConfig{}) {
		return fmt.Errorf("config cannot be empty")
	}

	if !cfg.TranscribeAPI.IsValid() {
		return fmt.Errorf("TranscribeAPI value is not valid")
	}

	if cfg.Model == "" && cfg.TranscribeAPI != TranscribeAPIAzure {
		return fmt.Errorf("Model cannot be empty")
	}

	if cfg.Language == "" {
		return fmt.Errorf("Language cannot be empty")
	} else if !languageRE.MatchString(cfg.Language) {
		return fmt.Errorf("Language parsing failed")
	}

	if cfg.SpeakersExpected < 1 {
		return fmt.Errorf("SpeakersExpected should be a positive number")
	}

	if cfg.PaddingMs < 0 {
		return fmt.Errorf("PaddingMs should not be negative")
	}

	if !cfg.PadMode.IsValid() {
		return fmt.Errorf("PadMode value is not valid")
	}

	if cfg.Timeout <= 0 {
		return fmt.Errorf("Timeout should be a positive duration")
	}

	if numCPU := runtime.NumCPU(); cfg.NumThreads < 1 || cfg.NumThreads > numCPU {
		return fmt.Errorf("NumThreads should be in the range [1, %d]", numCPU)
	}

	if err := validateURL("WhisperServerURL", cfg.WhisperServerURL); err != nil {
		return err
	}

	return validateURL("PyannoteURL", cfg.PyannoteURL)
}

func validateURL(name, val string) error {
	u, err := url.Parse(val)
	if err != nil {
		return fmt.Errorf("%s parsing failed: %w", name, err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s parsing failed: invalid scheme %q", name, u.Scheme)
	}
	return nil
}

func (cfg *TranscribeConfig) SetDefaults() {
	if cfg.TranscribeAPI == "" {
		cfg.TranscribeAPI = TranscribeAPIDefault
	}

	if cfg.Model == "" {
		cfg.Model = cfg.TranscribeAPI.DefaultModel()
	}

	if cfg.Language == "" {
		cfg.Language = LanguageDefault
	}

	if cfg.PadMode == "" {
		cfg.PadMode = audio.PadModeDefault
	}

	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = TimeoutDefault
	}

	if cfg.NumThreads == 0 {
		cfg.NumThreads = max(1, runtime.NumCPU()/2)
	}

	if cfg.WhisperServerURL == "" {
		cfg.WhisperServerURL = WhisperServerURLDefault
	}

	if cfg.PyannoteURL == "" {
		cfg.PyannoteURL = PyannoteURLDefault
	}

	if cfg.ModelsDir == "" {
		cfg.ModelsDir = ModelsDirDefault
	}
}

func (cfg TranscribeConfig) ToEnv() []string {
	if cfg == (TranscribeConfig{}) {
		return nil
	}

	vars := []string{
		fmt.Sprintf("TRANSCRIBE_API=%s", cfg.TranscribeAPI),
		fmt.Sprintf("TRANSCRIBE_MODEL=%s", cfg.Model),
		fmt.Sprintf("TRANSCRIBE_LANGUAGE=%s", cfg.Language),
		fmt.Sprintf("SPEAKERS_EXPECTED=%d", cfg.SpeakersExpected),
		fmt.Sprintf("PADDING_MS=%d", cfg.PaddingMs),
		fmt.Sprintf("PAD_MODE=%s", cfg.PadMode),
		fmt.Sprintf("OUTPUT_DIR=%s", cfg.OutputDir),
		fmt.Sprintf("OUTPUT_MERGE=%t", !cfg.NoMerge),
		fmt.Sprintf("OUTPUT_VTT=%t", cfg.VTT),
		fmt.Sprintf("TEMP_DIR=%s", cfg.TempDir),
		fmt.Sprintf("TRANSCRIBE_TIMEOUT=%s", cfg.Timeout),
		fmt.Sprintf("NUM_THREADS=%d", cfg.NumThreads),
		fmt.Sprintf("WHISPER_SERVER_URL=%s", cfg.WhisperServerURL),
		fmt.Sprintf("PYANNOTE_URL=%s", cfg.PyannoteURL),
		fmt.Sprintf("MODELS_DIR=%s", cfg.ModelsDir),
	}

	vars = append(vars, cfg.WebVTT.ToEnv()...)

	return vars
}

func (cfg TranscribeConfig) ToMap() map[string]any {
	if cfg == (TranscribeConfig{}) {
		return nil
	}

	m := map[string]any{
		"transcribe_api":     cfg.TranscribeAPI,
		"model":              cfg.Model,
		"language":           cfg.Language,
		"speakers_expected":  cfg.SpeakersExpected,
		"padding_ms":         cfg.PaddingMs,
		"pad_mode":           cfg.PadMode,
		"output_dir":         cfg.OutputDir,
		"output":             cfg.Output,
		"no_merge":           cfg.NoMerge,
		"vtt":                cfg.VTT,
		"temp_dir":           cfg.TempDir,
		"timeout":            cfg.Timeout.String(),
		"num_threads":        cfg.NumThreads,
		"whisper_server_url": cfg.WhisperServerURL,
		"pyannote_url":       cfg.PyannoteURL,
		"models_dir":         cfg.ModelsDir,
	}

	for k, v := range cfg.WebVTT.ToMap() {
		m[k] = v
	}

	return m
}

// FromMap sets the fields present in m, leaving the others untouched.
func (cfg *TranscribeConfig) FromMap(m map[string]any) *TranscribeConfig {
	if api, ok := m["transcribe_api"].(string); ok {
		cfg.TranscribeAPI = TranscribeAPI(api)
	} else if api, ok := m["transcribe_api"].(TranscribeAPI); ok {
		cfg.TranscribeAPI = api
	}
	if mode, ok := m["pad_mode"].(string); ok {
		cfg.PadMode = audio.PadMode(mode)
	} else if mode, ok := m["pad_mode"].(audio.PadMode); ok {
		cfg.PadMode = mode
	}

	setString(m, "model", &cfg.Model)
	setString(m, "language", &cfg.Language)
	setString(m, "output_dir", &cfg.OutputDir)
	setString(m, "output", &cfg.Output)
	setString(m, "temp_dir", &cfg.TempDir)
	setString(m, "whisper_server_url", &cfg.WhisperServerURL)
	setString(m, "pyannote_url", &cfg.PyannoteURL)
	setString(m, "models_dir", &cfg.ModelsDir)
	setInt(m, "speakers_expected", &cfg.SpeakersExpected)
	setInt(m, "padding_ms", &cfg.PaddingMs)
	setInt(m, "num_threads", &cfg.NumThreads)
	setBool(m, "no_merge", &cfg.NoMerge)
	setBool(m, "vtt", &cfg.VTT)
	setDuration(m, "timeout", &cfg.Timeout)

	if _, ok := m["webvtt_omit_speaker"]; ok {
		cfg.WebVTT.FromMap(m)
	}

	return cfg
}

// FromEnv overrides the fields whose variables are set.
func (cfg *TranscribeConfig) FromEnv() error {
	if val := os.Getenv("TRANSCRIBE_API"); val != "" {
		cfg.TranscribeAPI = TranscribeAPI(val)
	}
	if val := os.Getenv("PAD_MODE"); val != "" {
		cfg.PadMode = audio.PadMode(val)
	}

	envString("TRANSCRIBE_MODEL", &cfg.Model)
	envString("TRANSCRIBE_LANGUAGE", &cfg.Language)
	envString("OUTPUT_DIR", &cfg.OutputDir)
	envString("TEMP_DIR", &cfg.TempDir)
	envString("WHISPER_SERVER_URL", &cfg.WhisperServerURL)
	envString("PYANNOTE_URL", &cfg.PyannoteURL)
	envString("MODELS_DIR", &cfg.ModelsDir)

	if err := envInt("SPEAKERS_EXPECTED", &cfg.SpeakersExpected); err != nil {
		return err
	}
	if err := envInt("PADDING_MS", &cfg.PaddingMs); err != nil {
		return err
	}
	if err := envInt("NUM_THREADS", &cfg.NumThreads); err != nil {
		return err
	}
	if err := envBool("OUTPUT_VTT", &cfg.VTT); err != nil {
		return err
	}
	if err := envDuration("TRANSCRIBE_TIMEOUT", &cfg.Timeout); err != nil {
		return err
	}

	if val := os.Getenv("OUTPUT_MERGE"); val != "" {
		merge, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("failed to parse OUTPUT_MERGE: %w", err)
		}
		cfg.NoMerge = !merge
	}

	if os.Getenv("WEBVTT_OMIT_SPEAKER") != "" {
		cfg.WebVTT.FromEnv()
	}

	return nil
}
