package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/loqalabs/loqa-accent/internal/lexicon"
	"github.com/loqalabs/loqa-accent/internal/pipeline"
	"github.com/loqalabs/loqa-accent/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var lexiconPath string
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.StringVar(&lexiconPath, "file", "lexicon.yaml", "Path to lexicon document")

	var (
		configPath string
		source     string
		transcript string
	)
	analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	analyzeCmd.StringVar(&configPath, "config", "", "Path to configuration file (defaults when empty)")
	analyzeCmd.StringVar(&source, "source", "", "Media URL or local WAV path")
	analyzeCmd.StringVar(&transcript, "transcript", "", "Use this transcript instead of running speech recognition")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "expected 'validate', 'analyze' or 'version'")
		os.Exit(2)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := runValidate(lexiconPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("lexicon valid")
	case "analyze":
		analyzeCmd.Parse(os.Args[2:])
		if err := runAnalyze(configPath, source, transcript); err != nil {
			fmt.Fprintln(os.Stderr, err)
			if stage := pipeline.StageOf(err); stage != "" {
				fmt.Fprintf(os.Stderr, "failed stage: %s\n", stage)
			}
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		os.Exit(2)
	}
}

func runValidate(path string) error {
	f, err := lexicon.Load(path)
	if err != nil {
		return err
	}
	_, _, err = lexicon.Compile(f)
	return err
}

func runAnalyze(configPath, source, transcript string) error {
	if source == "" {
		return errors.New("-source is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	pipe, err := runtime.BuildPipeline(cfg, nil, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := pipe.Run(ctx, pipeline.Request{Source: source, Transcript: transcript})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
