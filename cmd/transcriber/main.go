package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mattermost/audio-transcriber/cmd/transcriber/audio"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/config"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/failure"
	"github.com/mattermost/audio-transcriber/cmd/transcriber/job"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	stopTimeout = 30 * time.Second
)

var errUsage = errors.New("usage error")

func slogReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		source := a.Value.Any().(*slog.Source)
		if source.File == "" {
			// Log from a dependency (e.g. speech SDK callbacks).
			if pc, file, line, ok := runtime.Caller(7); ok {
				if f := runtime.FuncForPC(pc); f != nil {
					source.File = filepath.Base(filepath.Dir(file)) + "/" + filepath.Base(file)
					source.Line = line
				}
			}
		} else {
			source.File = filepath.Base(source.File)
		}
	}
	return a
}

// setupLogger installs the default logger. Records also go to LOG_FILE, when
// set, through a rotating writer.
func setupLogger() (io.Closer, error) {
	level := slog.LevelDebug
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		if err := level.UnmarshalText([]byte(val)); err != nil {
			return nil, fmt.Errorf("failed to parse LOG_LEVEL: %w", err)
		}
	}

	var w io.Writer = os.Stdout
	var closer io.Closer = io.NopCloser(nil)
	if path := os.Getenv("LOG_FILE"); path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		}
		w = io.MultiWriter(os.Stdout, lj)
		closer = lj
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		AddSource:   true,
		Level:       level,
		ReplaceAttr: slogReplaceAttr,
	}))
	slog.SetDefault(logger)

	return closer, nil
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [flags] <input_file>...\n\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  split       split audio files on silence")
	fmt.Fprintln(os.Stderr, "  turns       split audio files into speaker turns")
	fmt.Fprintln(os.Stderr, "  transcribe  transcribe audio files with speaker labels")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var cmd func(args []string) error
	switch os.Args[1] {
	case "split":
		cmd = runSplit
	case "turns":
		cmd = runTurns
	case "transcribe":
		cmd = runTranscribe
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err := run(cmd, os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(1)
	}
}

func run(cmd func(args []string) error, args []string) error {
	envErr := config.LoadEnvFiles()

	closer, err := setupLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return err
	}
	defer closer.Close()

	if envErr != nil {
		slog.Error("failed to load env files", slog.String("err", envErr.Error()))
		return failure.Configuration(envErr)
	}

	if err := cmd(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		slog.Error("transcriber failed",
			slog.String("kind", failure.KindOf(err).String()),
			slog.String("err", err.Error()))
		return err
	}

	slog.Info("transcriber has finished, exiting")

	return nil
}

func parseFlags(fs *pflag.FlagSet, args []string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, err
		}
		return nil, failure.Configuration(fmt.Errorf("failed to parse flags: %w", err))
	}

	inputs := fs.Args()
	if len(inputs) == 0 {
		fs.Usage()
		return nil, failure.Configuration(fmt.Errorf("%w: missing input file", errUsage))
	}

	return inputs, nil
}

// runJobs feeds inputs to a single background worker and reports each
// completion. A SIGINT or SIGTERM stops the worker and cancels the running
// task.
func runJobs(run job.RunFunc, inputs []string) error {
	w, err := job.NewWorker(run, len(inputs))
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	for _, input := range inputs {
		if _, err := w.Submit(input); err != nil {
			_ = w.Stop(context.Background())
			return fmt.Errorf("failed to submit %s: %w", input, err)
		}
	}
	w.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	var errs []error
	for {
		select {
		case c, ok := <-w.Completions():
			if !ok {
				if len(errs) > 0 {
					return fmt.Errorf("%d of %d inputs failed: %w", len(errs), len(inputs), errors.Join(errs...))
				}
				return nil
			}
			if c.Err != nil {
				slog.Error("task failed",
					slog.String("taskID", c.TaskID),
					slog.String("input", c.Input),
					slog.String("kind", failure.KindOf(c.Err).String()),
					slog.String("err", c.Err.Error()))
				errs = append(errs, c.Err)
				continue
			}
			slog.Info("task done",
				slog.String("taskID", c.TaskID),
				slog.String("input", c.Input),
				slog.String("output", c.Output),
				slog.Duration("elapsed", c.Elapsed))
		case <-sig:
			slog.Info("received SIGTERM, stopping worker")
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			err := w.Stop(ctx)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to stop worker: %w", err)
			}
			sig = nil
		}
	}
}

func requireFFmpeg() error {
	if !audio.Available() {
		return failure.Configuration(fmt.Errorf("ffmpeg and ffprobe should be installed and in PATH"))
	}
	return nil
}
