package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourorg/shotdeck/internal/config"
	"github.com/yourorg/shotdeck/internal/extract"
	"github.com/yourorg/shotdeck/internal/genai"
	"github.com/yourorg/shotdeck/internal/logging"
	"github.com/yourorg/shotdeck/internal/metrics"
	"github.com/yourorg/shotdeck/internal/pipeline"
	"github.com/yourorg/shotdeck/internal/server"
	"github.com/yourorg/shotdeck/internal/store"
	"github.com/yourorg/shotdeck/internal/telemetry"
)

var version = "dev"

const defaultConfigContent = `genai:
  provider: "gemini"
  api_key: ""
  base_url: ""
  text_model: "gemini-3-flash-preview"
  image_model: "gemini-3-pro-image-preview"
  timeout: 300s

generation:
  workers: 10
  timeout: 30m

output:
  dir: "./outputs"
  formats:
    - json
    - markdown

catalog:
  dir: "./catalog"
  image_extensions: [".jpg", ".jpeg", ".png", ".webp", ".gif"]
  document_extensions: [".pdf", ".txt", ".md"]
  ignore_paths:
    - .DS_Store
    - /.
    - /outputs/

prompts:
  dir: "./prompts"
  modes:
    cover: cover.txt
    preview: preview.txt
    top: top.txt
    title: title.txt

sanitize:
  params:
    - key
    - api_key
    - token
    - x-goog-api-key
    - authorization
  replacement: "***REDACTED***"

# pricing:
#   my-model:
#     input_text: 0.10
#     input_image: 0.10
#     output_text: 0.40
#     per_image: 0.03

server:
  host: "127.0.0.1"
  port: 3000
  cors_origins: []

log:
  level: "info"
  format: "console"

telemetry:
  endpoint: ""
  insecure: true
  service_name: "shotdeck"
`

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	cfgPath string
	verbose bool
	debug   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "shotdeck",
		Short:         "Product image generation pipeline",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.cfgPath, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&flags.verbose, "verbose", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug output")

	root.AddCommand(newInitCmd())
	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newPromptsCmd(flags))
	root.AddCommand(newTitleCmd(flags))
	root.AddCommand(newCostCmd(flags))
	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newListCmd(flags))
	root.AddCommand(newShowCmd(flags))
	root.AddCommand(newDeleteCmd(flags))

	return root
}

// env is the wired process state shared by the subcommands.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *store.SQLiteStore
	metrics *metrics.Recorder
	stop    telemetry.Shutdown
}

func loadEnv(ctx context.Context, flags *rootFlags) (*env, error) {
	cfg, err := config.Load(flags.cfgPath)
	if err != nil {
		return nil, err
	}
	level := cfg.Log.Level
	switch {
	case flags.debug:
		level = "debug"
	case flags.verbose && level != "debug":
		level = "info"
	}
	log := logging.New(level, cfg.Log.Format)

	stop, err := telemetry.Init(ctx, cfg.Telemetry.Endpoint, cfg.Telemetry.ServiceName, version, cfg.Telemetry.Insecure)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		_ = stop(ctx)
		return nil, fmt.Errorf("open store: %w", err)
	}
	return &env{cfg: cfg, log: log, store: st, metrics: metrics.New(), stop: stop}, nil
}

func (e *env) Close() {
	_ = e.store.Close()
	_ = e.stop(context.Background())
	_ = e.log.Sync()
}

func (e *env) pipeline() (*pipeline.Pipeline, error) {
	client, err := genai.New(genai.Options{
		Provider:   e.cfg.GenAI.Provider,
		APIKey:     e.cfg.GenAI.APIKey,
		BaseURL:    e.cfg.GenAI.BaseURL,
		HTTPClient: &http.Client{Timeout: e.cfg.GenAI.Timeout},
		Logger:     e.log,
	})
	if err != nil {
		return nil, err
	}
	return pipeline.New(e.cfg, client, e.store, pipeline.Options{
		Logger:  e.log,
		Metrics: e.metrics,
		Tracer:  telemetry.Tracer("github.com/yourorg/shotdeck/internal/pipeline"),
		OnProgress: func(stage string) {
			e.log.Info("stage started", zap.String("stage", stage))
		},
	})
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize ~/.shotdeck directory and default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			baseDir := filepath.Join(home, ".shotdeck")
			if err := os.MkdirAll(baseDir, 0o755); err != nil {
				return err
			}

			cfgFile := filepath.Join(baseDir, "config.yaml")
			if _, err := os.Stat(cfgFile); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(cfgFile, []byte(defaultConfigContent), 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "created", cfgFile)
			} else if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "exists", cfgFile)
			} else {
				return err
			}

			dbPath := filepath.Join(baseDir, "shotdeck.db")
			s, err := store.NewSQLiteStore(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "database ready", dbPath)
			fmt.Fprintln(cmd.OutOrStdout(), "please set GEMINI_API_KEY or genai.api_key in", cfgFile)
			return nil
		},
	}
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var in pipeline.Input
	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Generate images for a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Paths = append(in.Paths, args...)
			if in.ProductID == "" && len(in.Paths) == 0 {
				return errors.New("either --product or input files are required")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			e, err := loadEnv(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.cfg.ValidateGenerate(); err != nil {
				return err
			}
			p, err := e.pipeline()
			if err != nil {
				return err
			}

			if t := e.cfg.Generation.Timeout; t > 0 {
				var stop context.CancelFunc
				ctx, stop = context.WithTimeout(ctx, t)
				defer stop()
			}
			report, err := p.Execute(ctx, in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s (%s) %s\n", report.RunID, report.Mode, report.Status())
			fmt.Fprintf(out, "  images: %d/%d prompts, %d failed\n", report.ImagesGenerated, report.PromptsUsed, report.Failed)
			fmt.Fprintf(out, "  tokens: %d in / %d out\n", report.Usage.PromptTokens, report.Usage.CompletionTokens)
			fmt.Fprintf(out, "  cost:   $%.4f\n", report.Cost.Total)
			fmt.Fprintf(out, "  output: %s\n", report.OutputDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ProductID, "product", "", "product id under the catalog dir")
	cmd.Flags().StringSliceVar(&in.Paths, "files", nil, "explicit input files")
	cmd.Flags().StringVar(&in.Mode, "mode", pipeline.ModeCover, "generation mode")
	cmd.Flags().IntVar(&in.NumImages, "num-images", 0, "limit the number of prompts (0 = all)")
	cmd.Flags().StringVar(&in.MetaPrompt, "meta-prompt", "", "meta prompt file overriding the mode default")
	cmd.Flags().StringVar(&in.Target, "target", "", "target image for adapt mode")
	cmd.Flags().IntVar(&in.Workers, "workers", 0, "concurrent generation calls (0 = config)")
	cmd.Flags().BoolVar(&in.NoCache, "no-cache", false, "ignore cached prompts")
	cmd.Flags().StringVar(&in.Model, "model", "", "image model alias (gemini, gemini-3, imagen, imagen-ultra)")
	return cmd
}

func newTitleCmd(flags *rootFlags) *cobra.Command {
	var in pipeline.Input
	cmd := &cobra.Command{
		Use:   "title [files...]",
		Short: "Generate listing titles for a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Paths = append(in.Paths, args...)
			if in.ProductID == "" && len(in.Paths) == 0 {
				return errors.New("either --product or input files are required")
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			e, err := loadEnv(ctx, flags)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.cfg.ValidateGenerate(); err != nil {
				return err
			}
			p, err := e.pipeline()
			if err != nil {
				return err
			}

			r, err := p.Titles(ctx, in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(r.Titles); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved %s ($%.4f)\n", r.Path, r.Cost.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ProductID, "product", "", "product id under the catalog dir")
	cmd.Flags().StringSliceVar(&in.Paths, "files", nil, "explicit input files")
	cmd.Flags().StringVar(&in.MetaPrompt, "meta-prompt", "", "meta prompt file overriding title.txt")
	return cmd
}

func newPromptsCmd(flags *rootFlags) *cobra.Command {
	var structured bool
	cmd := &cobra.Command{
		Use:   "prompts <analysis-file>",
		Short: "Extract prompts from a saved analysis text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			level := "warn"
			if flags.debug {
				level = "debug"
			}
			ex := extract.New(logging.New(level, "console"))

			prompts := ex.Extract(string(data))
			if structured {
				if s := ex.ExtractStructured(string(data)); len(s) > 0 {
					prompts = s
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(prompts)
		},
	}
	cmd.Flags().BoolVar(&structured, "structured", false, "prefer fenced JSON records")
	return cmd
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var host string
	var port int
	var noRuns bool
	cmd := &cobra.Command{Use: "serve", Short: "Start HTTP service", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		e, err := loadEnv(ctx, flags)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.cfg.Validate(); err != nil {
			return err
		}

		opts := server.Options{Metrics: e.metrics, Logger: e.log}
		if !noRuns {
			p, err := e.pipeline()
			if err != nil {
				return err
			}
			opts.Runner = p
		}
		srv, err := server.New(e.cfg, e.store, opts)
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("host") {
			host = e.cfg.Server.Host
		}
		if !cmd.Flags().Changed("port") {
			port = e.cfg.Server.Port
		}
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		e.log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "server host")
	cmd.Flags().IntVar(&port, "port", 3000, "server port")
	cmd.Flags().BoolVar(&noRuns, "read-only", false, "disable run submission")
	return cmd
}
