package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/config"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/pipeline"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/segment"

	"github.com/spf13/pflag"
)

// loadConfigFile reads the optional YAML config file. Its values are applied
// before the environment, which flags override in turn.
func loadConfigFile(configFile string) (map[string]any, error) {
	path := config.ConfigFile(configFile)
	if path == "" {
		return nil, nil
	}

	m, err := config.LoadFile(path)
	if err != nil {
		return nil, failure.Configuration(err)
	}
	slog.Debug("loaded config file", slog.String("path", path))

	return m, nil
}

func runTranscribe(args []string) error {
	fs := pflag.NewFlagSet("transcribe", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	api := fs.String("api", "", "transcription API: assemblyai, whisper.cpp, whisper-server or azure")
	model := fs.String("model", "", "model name, defaults per API")
	language := fs.String("language", "", "spoken language code (e.g. pt, es, en, en_us)")
	speakers := fs.Int("speakers", 0, "number of speakers expected")
	paddingMs := fs.Int("padding-ms", 0, "silence added around the audio before transcription, 0 disables it")
	padMode := fs.String("pad-mode", "", "where padding is added: start or both")
	outputDir := fs.String("output_dir", "", "directory for the transcripts, defaults to each input's directory")
	output := fs.String("output", "", "transcript path, only valid with a single input")
	noMerge := fs.Bool("no-merge", false, "write one line per utterance instead of merging consecutive speakers")
	vtt := fs.Bool("vtt", false, "also write a WebVTT transcript")
	tmpDir := fs.String("tmpdir", "", "directory for intermediate files")
	timeout := fs.Duration("timeout", 0, "transcription timeout")
	numThreads := fs.Int("threads", 0, "threads used by local models")
	modelsDir := fs.String("models-dir", "", "directory holding local model files")
	hfToken := fs.String("hf_token", "", "Hugging Face token for the diarization sidecar")

	inputs, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	fileCfg, err := loadConfigFile(*configFile)
	if err != nil {
		return err
	}

	cfg := config.NewTranscribeConfig()
	cfg.FromMap(fileCfg)
	if err := cfg.FromEnv(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to load config: %w", err))
	}

	if fs.Changed("api") {
		cfg.TranscribeAPI = config.TranscribeAPI(*api)
	}
	if fs.Changed("model") {
		cfg.Model = *model
	}
	if fs.Changed("language") {
		cfg.Language = *language
	}
	if fs.Changed("speakers") {
		cfg.SpeakersExpected = *speakers
	}
	if fs.Changed("padding-ms") {
		cfg.PaddingMs = *paddingMs
	}
	if fs.Changed("pad-mode") {
		cfg.PadMode = audio.PadMode(*padMode)
	}
	if fs.Changed("output_dir") {
		cfg.OutputDir = *outputDir
	}
	if fs.Changed("output") {
		cfg.Output = *output
	}
	if fs.Changed("no-merge") {
		cfg.NoMerge = *noMerge
	}
	if fs.Changed("vtt") {
		cfg.VTT = *vtt
	}
	if fs.Changed("tmpdir") {
		cfg.TempDir = *tmpDir
	}
	if fs.Changed("timeout") {
		cfg.Timeout = *timeout
	}
	if fs.Changed("threads") {
		cfg.NumThreads = *numThreads
	}
	if fs.Changed("models-dir") {
		cfg.ModelsDir = *modelsDir
	}
	cfg.SetDefaults()

	if cfg.Output != "" && len(inputs) > 1 {
		return failure.Configuration(fmt.Errorf("%w: --output cannot be used with multiple inputs", errUsage))
	}

	if err := cfg.IsValid(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}

	creds := config.CredentialsFromEnv()
	if fs.Changed("hf_token") {
		creds.HFToken = *hfToken
	}

	slog.Debug("loaded config", slog.Any("cfg", cfg.ToMap()), slog.String("credentials", creds.String()))

	if err := requireFFmpeg(); err != nil {
		return err
	}

	client, closeClient, err := newClient(cfg, creds)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeClient(); err != nil {
			slog.Error("failed to close client", slog.String("err", err.Error()))
		}
	}()

	ffmpeg := audio.NewFFmpeg()
	tr, err := pipeline.NewTranscription(cfg, client, ffmpeg, ffmpeg)
	if err != nil {
		return err
	}

	slog.Info("starting transcriber", slog.String("api", string(cfg.TranscribeAPI)), slog.Int("inputs", len(inputs)))

	return runJobs(tr.Run, inputs)
}

func runSplit(args []string) error {
	fs := pflag.NewFlagSet("split", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	outputDir := fs.String("output_dir", "", "directory for the segments, defaults to <input>_segments")
	minSilenceMs := fs.Int("min-silence-ms", 0, "shortest silence that splits the audio")
	threshDB := fs.Float64("silence-thresh-db", 0, "loudness in dBFS at or below which audio is silent")
	relative := fs.Bool("relative-thresh", false, "treat the threshold as relative to the input's loudness")
	keepSilence := fs.Bool("keep-silence", true, "keep all bordering silence")
	keepSilenceMs := fs.Int("keep-silence-ms", 0, "silence kept on each side when --keep-silence=false")
	seekStepMs := fs.Int("seek-step-ms", 0, "step of the silence detection window")
	format := fs.String("format", "", "segment format: mp3 or wav")
	detector := fs.String("detector", "", "silence detector: energy or vad")
	modelsDir := fs.String("models-dir", "", "directory holding the VAD model")

	inputs, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	fileCfg, err := loadConfigFile(*configFile)
	if err != nil {
		return err
	}

	cfg := config.NewSplitConfig()
	cfg.FromMap(fileCfg)
	if err := cfg.FromEnv(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to load config: %w", err))
	}

	if fs.Changed("output_dir") {
		cfg.OutputDir = *outputDir
	}
	if fs.Changed("min-silence-ms") {
		cfg.Silence.MinSilenceMs = *minSilenceMs
	}
	if fs.Changed("silence-thresh-db") {
		cfg.Silence.SilenceThreshDB = *threshDB
	}
	if fs.Changed("relative-thresh") {
		cfg.Silence.RelativeThresh = *relative
	}
	if fs.Changed("keep-silence") {
		cfg.Silence.KeepSilence = *keepSilence
	}
	if fs.Changed("keep-silence-ms") {
		cfg.Silence.KeepSilenceMs = *keepSilenceMs
	}
	if fs.Changed("seek-step-ms") {
		cfg.Silence.SeekStepMs = *seekStepMs
	}
	if fs.Changed("format") {
		cfg.Format = segment.Format(*format)
	}
	if fs.Changed("detector") {
		cfg.Detector = config.SilenceDetector(*detector)
	}
	if fs.Changed("models-dir") {
		cfg.ModelsDir = *modelsDir
	}
	cfg.SetDefaults()

	if err := cfg.IsValid(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}

	slog.Debug("loaded config", slog.Any("cfg", cfg.ToMap()))

	if err := requireFFmpeg(); err != nil {
		return err
	}

	det, loadOpts, closeDet, err := newDetector(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeDet(); err != nil {
			slog.Error("failed to close detector", slog.String("err", err.Error()))
		}
	}()

	s, err := pipeline.NewSplit(cfg, audio.NewFFmpeg(), det, loadOpts)
	if err != nil {
		return err
	}

	return runJobs(func(ctx context.Context, input string) (string, error) {
		if _, err := s.Run(ctx, input); err != nil {
			return "", err
		}
		return s.OutputDir(input), nil
	}, inputs)
}

func runTurns(args []string) error {
	fs := pflag.NewFlagSet("turns", pflag.ContinueOnError)
	configFile := fs.String("config", "", "path to a YAML config file")
	outputDir := fs.String("output_dir", "", "directory for the turns, defaults to <input>_turns")
	speakers := fs.Int("speakers", 0, "number of speakers to cluster")
	frameMs := fs.Int("frame-ms", 0, "analysis frame length")
	hopMs := fs.Int("hop-ms", 0, "analysis frame step")
	numMFCC := fs.Int("num-mfcc", 0, "MFCC coefficients per frame")

	inputs, err := parseFlags(fs, args)
	if err != nil {
		return err
	}

	fileCfg, err := loadConfigFile(*configFile)
	if err != nil {
		return err
	}

	cfg := config.NewTurnsConfig()
	cfg.FromMap(fileCfg)
	if err := cfg.FromEnv(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to load config: %w", err))
	}

	if fs.Changed("output_dir") {
		cfg.OutputDir = *outputDir
	}
	if fs.Changed("speakers") {
		cfg.Turns.NumSpeakers = *speakers
	}
	if fs.Changed("frame-ms") {
		cfg.Turns.FrameMs = *frameMs
	}
	if fs.Changed("hop-ms") {
		cfg.Turns.HopMs = *hopMs
	}
	if fs.Changed("num-mfcc") {
		cfg.Turns.NumMFCC = *numMFCC
	}

	if err := cfg.IsValid(); err != nil {
		return failure.Configuration(fmt.Errorf("failed to validate config: %w", err))
	}

	slog.Debug("loaded config", slog.Any("cfg", cfg.ToMap()))

	if err := requireFFmpeg(); err != nil {
		return err
	}

	t, err := pipeline.NewTurns(cfg, audio.NewFFmpeg())
	if err != nil {
		return err
	}

	return runJobs(func(ctx context.Context, input string) (string, error) {
		if _, err := t.Run(ctx, input); err != nil {
			return "", err
		}
		return t.OutputDir(input), nil
	}, inputs)
}
