// Package main implements the hcilog-heatmap rendering binary. It
// turns recorded sessions into heatmap artifacts: pointer and gaze
// density maps, clicks-only maps, screenshot overlays, and side-by-side
// session comparisons.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hcilog/hcilog/internal/artifact"
	"github.com/hcilog/hcilog/internal/config"
	"github.com/hcilog/hcilog/internal/heatmap"
	"github.com/hcilog/hcilog/internal/store"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		sessionID   int64
		kind        string
		at          float64
		withID      int64
		cellSize    int
		blurRadius  int
		clickWeight float64
		alpha       float64
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the database and artifacts")
	flag.Int64Var(&sessionID, "session", 0, "Session ID to render")
	flag.StringVar(&kind, "kind", "pointer", "Render kind: pointer, clicks, gaze, overlay, split, comparison")
	flag.Float64Var(&at, "at", -1, "Session timestamp for overlay screenshot selection (seconds)")
	flag.Int64Var(&withID, "with", 0, "Second session ID for comparison")
	flag.IntVar(&cellSize, "cell-size", 0, "Override density grid cell size in pixels")
	flag.IntVar(&blurRadius, "blur", 0, "Override Gaussian blur radius in cells")
	flag.Float64Var(&clickWeight, "click-weight", 0, "Override click density weight")
	flag.Float64Var(&alpha, "alpha", 0, "Override overlay opacity (0..1)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hcilog-heatmap - Session Heatmap Renderer\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hcilog-heatmap --session <id> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hcilog-heatmap --session 3\n")
		fmt.Fprintf(os.Stderr, "  hcilog-heatmap --session 3 --kind overlay --at 42.5\n")
		fmt.Fprintf(os.Stderr, "  hcilog-heatmap --session 3 --kind comparison --with 4\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("hcilog-heatmap version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}
	if sessionID == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	art, err := openArtifacts(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	opts := heatmap.Options{
		CellSize:     cfg.Heatmap.CellSize,
		BlurRadius:   cfg.Heatmap.BlurRadius,
		ClickWeight:  cfg.Heatmap.ClickWeight,
		OverlayAlpha: cfg.Heatmap.OverlayAlpha,
	}
	if cellSize > 0 {
		opts.CellSize = cellSize
	}
	if blurRadius > 0 {
		opts.BlurRadius = blurRadius
	}
	if clickWeight > 0 {
		opts.ClickWeight = clickWeight
	}
	if alpha > 0 {
		opts.OverlayAlpha = alpha
	}

	engine := heatmap.NewEngine(st, art, opts)

	var path string
	switch kind {
	case "pointer":
		path, err = engine.RenderPointer(ctx, sessionID)
	case "clicks":
		path, err = engine.RenderClicks(ctx, sessionID)
	case "gaze":
		path, err = engine.RenderGaze(ctx, sessionID)
	case "overlay":
		path, err = engine.RenderOverlay(ctx, sessionID, at)
	case "split":
		path, err = engine.RenderSplit(ctx, sessionID)
	case "comparison":
		if withID == 0 {
			log.Fatalf("comparison requires --with <session>")
		}
		path, err = engine.RenderComparison(ctx, sessionID, withID)
	default:
		log.Fatalf("Unknown render kind: %s", kind)
	}
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}

	fmt.Println(path)
}

func loadConfig(configFile, dataDir string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	cfg.Resolve()

	return cfg, cfg.Validate()
}

func openArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.Artifacts.Type {
	case "s3":
		return artifact.NewS3(ctx, cfg.Artifacts.S3.Bucket, artifact.S3Config{
			Region:       cfg.Artifacts.S3.Region,
			Endpoint:     cfg.Artifacts.S3.Endpoint,
			UsePathStyle: cfg.Artifacts.S3.Endpoint != "",
		})
	default:
		return artifact.NewLocal(cfg.Artifacts.Path)
	}
}
