package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ewilliams-labs/voicecanvas/internal/adapters/audiofile"
	"github.com/ewilliams-labs/voicecanvas/internal/adapters/vision"
	"github.com/ewilliams-labs/voicecanvas/internal/audio"
	"github.com/ewilliams-labs/voicecanvas/internal/config"
	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/services"
	"github.com/ewilliams-labs/voicecanvas/internal/mapping"
	"github.com/ewilliams-labs/voicecanvas/internal/monitor"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp() *cli.App {
	app := &cli.App{
		Name:    "sketchctl",
		Usage:   "Operator tools for the voicecanvas sketch service",
		Version: Version,
		Commands: []*cli.Command{
			replayCmd(),
			describeCmd(),
			modelsCmd(),
			monitorCmd(),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// replayFrame is one analyzed window of a replayed file.
type replayFrame struct {
	At     time.Duration            `json:"at"`
	Sample domain.AudioSample       `json:"sample"`
	Params domain.DrawingParameters `json:"params"`
}

// replayCmd creates the replay command.
func replayCmd() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Run a WAV or MP3 file through the extractor and mapper",
		ArgsUsage: "<file.wav|file.mp3>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "profile", Aliases: []string{"p"}, Value: mapping.ProfileVivid, Usage: "Mapping profile: vivid|spectrum"},
			&cli.IntFlag{Name: "window", Aliases: []string{"w"}, Value: 2048, Usage: "Analysis window in samples (power of two)"},
			&cli.IntFlag{Name: "hop", Usage: "Samples between windows (defaults to the window)"},
			&cli.BoolFlag{Name: "json", Usage: "Print one JSON object per window"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(fmt.Errorf("a file path is required: %w", domain.ErrInvalidInput))
			}

			mapper, err := mapping.New(c.String("profile"))
			if err != nil {
				return outputError(err)
			}
			analyzer, err := audio.NewAnalyzer(c.Int("window"))
			if err != nil {
				return outputError(err)
			}
			samples, rate, err := audiofile.Decode(path)
			if err != nil {
				return outputError(err)
			}

			frames, err := replay(samples, rate, c.Int("hop"), analyzer, mapper)
			if err != nil {
				return outputError(err)
			}

			w := c.App.Writer
			if c.Bool("json") {
				enc := json.NewEncoder(w)
				for _, f := range frames {
					if err := enc.Encode(f); err != nil {
						return outputError(err)
					}
				}
				return nil
			}
			if strings.EqualFold(filepath.Ext(path), ".mp3") {
				if tags, err := audiofile.ReadTags(path); err == nil && tags.Title != "" {
					fmt.Fprintf(w, "# %s by %s\n", tags.Title, orUnknown(tags.Artist))
				}
			}
			for _, f := range frames {
				n := f.Params.Color.Normalized()
				fmt.Fprintf(w, "%8.3fs  volume=%.4f  pitch=%7.1fHz  width=%5.1fpx  color=hsl(%.0f,%.0f%%,%.0f%%)\n",
					f.At.Seconds(), f.Sample.Volume, f.Sample.PitchHz, f.Params.StrokeWidthPx, n.Hue, n.Saturation, n.Lightness)
			}
			return nil
		},
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown artist"
	}
	return s
}

// replay analyzes every window of samples in order.
func replay(samples []float32, rate, hop int, analyzer *audio.Analyzer, mapper mapping.Mapper) ([]replayFrame, error) {
	if hop <= 0 {
		hop = analyzer.Size()
	}
	stream := audiofile.NewStream(samples, rate, hop)
	window := make([]float32, analyzer.Size())

	var frames []replayFrame
	for i := 0; ; i++ {
		err := stream.Read(window)
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return nil, err
		}
		sample := analyzer.Analyze(window, rate)
		frames = append(frames, replayFrame{
			At:     time.Duration(float64(i*hop) / float64(rate) * float64(time.Second)),
			Sample: sample,
			Params: mapper.Parameters(sample, true),
		})
	}
}

// describeCmd creates the describe command.
func describeCmd() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "Send a PNG sketch to the configured vision model",
		ArgsUsage: "<file.png>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Usage: "Model id (defaults to DEFAULT_MODEL or the provider default)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return outputError(fmt.Errorf("a PNG path is required: %w", domain.ErrInvalidInput))
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return outputError(err)
			}
			if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
				return outputError(fmt.Errorf("%s is not a PNG: %w", path, domain.ErrInvalidInput))
			}

			cfg, err := config.Load()
			if err != nil {
				return outputError(err)
			}
			sel := vision.FromConfig(cfg)
			pipeline := services.NewSubmissionPipeline(sel.Analyzer, services.PipelineOptions{
				DefaultModel: sel.DefaultModel,
				Timeout:      cfg.RequestTimeout,
			})

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
			defer stop()

			done, err := pipeline.Submit(ctx, data, c.String("model"))
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, describeOutput{
				Model:   done.ModelID,
				Latency: done.Latency.Round(time.Millisecond).String(),
				Result:  done.Result,
			})
		},
	}
}

type describeOutput struct {
	Model   string                  `json:"model"`
	Latency string                  `json:"latency"`
	Result  domain.SubmissionResult `json:"result"`
}

// modelsCmd creates the models command.
func modelsCmd() *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "List the model ids the configured provider accepts",
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return outputError(err)
			}
			sel := vision.FromConfig(cfg)
			for _, m := range sel.Models {
				marker := " "
				if m == sel.DefaultModel {
					marker = "*"
				}
				fmt.Fprintf(c.App.Writer, "%s %s\n", marker, m)
			}
			return nil
		},
	}
}

// monitorCmd creates the monitor command.
func monitorCmd() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Open a terminal dashboard for a running API",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "http://localhost:8080", Usage: "API base URL"},
			&cli.DurationFlag{Name: "wait", Usage: "Wait this long for /health before opening the dashboard"},
		},
		Action: func(c *cli.Context) error {
			client := monitor.NewClient(c.String("addr"))
			if wait := c.Duration("wait"); wait > 0 {
				if err := client.WaitHealthy(c.Context, wait); err != nil {
					return outputError(err)
				}
			}
			if err := monitor.Run(client); err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// outputJSON writes v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if errors.Is(err, domain.ErrSubmissionInFlight) {
		return cli.Exit(err.Error(), 2)
	}
	return cli.Exit(err.Error(), 1)
}
