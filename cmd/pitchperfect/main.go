// Command pitchperfect compares a singer's recording against the original
// and prints the detected keys and the aligned pitch curves.
//
// Usage:
//
//	pitchperfect [flags] -original song.mp3 -user take.wav
//
// Examples:
//
//	pitchperfect -original song.wav -user take.wav
//	pitchperfect -scoring pearson -evidence last -original song.mp3 -user take.mp3
//	pitchperfect -format table -max-windows 200 -original song.wav -user take.wav
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/RyanBlaney/pitchperfect/analysis"
	"github.com/RyanBlaney/pitchperfect/logging"
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	defaults := analysis.DefaultConfig()

	var (
		originalPath = flag.String("original", "", "path to the original recording (required)")
		userPath     = flag.String("user", "", "path to the user's recording (required)")
		configPath   = flag.String("config", getEnvOrDefault("PITCHPERFECT_CONFIG", ""), "JSON config file; flags override it")
		windowSize   = flag.Int("window", defaults.WindowSize, "samples per chroma window")
		maxWindows   = flag.Int("max-windows", defaults.MaxWindows, "stop after this many windows per recording (0 = no limit)")
		maxDuration  = flag.Duration("max-duration", 0, "decode at most this much of each file (0 = whole file)")
		tuning       = flag.Float64("tuning", defaults.TuningFrequency, "A4 reference frequency in Hz")
		windowFunc   = flag.String("window-func", defaults.Window, "analysis window: hann, hamming, blackman or bartlett")
		pitchMode    = flag.String("pitch-mode", defaults.PitchMode, "pitch estimate: dominant or average")
		profile      = flag.String("profile", defaults.KeyProfile, "key templates: krumhansl, temperley, shaath or diatonic")
		scoring      = flag.String("scoring", defaults.Scoring, "key scoring: dot or pearson")
		evidence     = flag.String("evidence", string(defaults.KeyEvidence), "key evidence: accumulated or last")
		format       = flag.String("format", "json", "output format: json or table")
		logLevel     = flag.String("log-level", getEnvOrDefault("PITCHPERFECT_LOG_LEVEL", "warn"), "log level: debug, info, warn or error")
		timeout      = flag.Duration("timeout", 5*time.Minute, "overall analysis timeout")
	)
	flag.Parse()

	logging.SetLevel(logging.ParseLevel(*logLevel))

	cfg := defaults
	if *configPath != "" {
		loaded, err := analysis.LoadConfig(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}

	// explicitly set flags win over the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "window":
			cfg.WindowSize = *windowSize
		case "max-windows":
			cfg.MaxWindows = *maxWindows
		case "max-duration":
			cfg.Decoder.MaxDuration = *maxDuration
		case "tuning":
			cfg.TuningFrequency = *tuning
		case "window-func":
			cfg.Window = *windowFunc
		case "pitch-mode":
			cfg.PitchMode = *pitchMode
		case "profile":
			cfg.KeyProfile = *profile
		case "scoring":
			cfg.Scoring = *scoring
		case "evidence":
			cfg.KeyEvidence = analysis.KeyEvidence(*evidence)
		}
	})

	if *originalPath == "" || *userPath == "" {
		fmt.Fprintln(os.Stderr, "both -original and -user are required")
		flag.Usage()
		os.Exit(2)
	}

	analyzer, err := analysis.New(cfg)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logging.ContextWithFields(ctx, logging.Fields{
		"original_file": filepath.Base(*originalPath),
		"user_file":     filepath.Base(*userPath),
	})

	report, err := analyzer.AnalyzeFiles(ctx, *originalPath, *userPath)
	if err != nil {
		fatal(err)
	}

	switch *format {
	case "table":
		err = writeTable(os.Stdout, report)
	default:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(report)
	}
	if err != nil {
		fatal(err)
	}
}

func writeTable(w io.Writer, report *analysis.Report) error {
	fmt.Fprintf(w, "Original key: %s (%d windows, %d skipped)\n",
		report.OriginalKey, report.Original.Windows, report.Original.Skipped)
	fmt.Fprintf(w, "User key:     %s (%d windows, %d skipped)\n\n",
		report.UserKey, report.User.Windows, report.User.Skipped)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Time\tOriginal\tUser\t")
	for _, p := range report.Points {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t\n", p.Time, p.Original, p.User)
	}
	return tw.Flush()
}

func fatal(err error) {
	logging.Error(err, "Analysis failed")
	fmt.Fprintf(os.Stderr, "pitchperfect: %v\n", err)
	os.Exit(1)
}
