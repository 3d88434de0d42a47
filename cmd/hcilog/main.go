// Package main implements the hcilog recording binary. It manages
// session storage (list, inspect, delete) and records sessions by
// replaying pointer traces through the tracker pipeline; live OS
// adapters plug in through internal/capture.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hcilog/hcilog/internal/capture"
	"github.com/hcilog/hcilog/internal/config"
	"github.com/hcilog/hcilog/internal/session"
	"github.com/hcilog/hcilog/internal/store"
	"github.com/hcilog/hcilog/internal/tracker"
	"github.com/hcilog/hcilog/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		tracePath   string
		participant string
		experiment  string
		targetURL   string
		width       int
		height      int
		list        bool
		info        int64
		deleteID    int64
		showVersion bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for the database and artifacts")
	flag.StringVar(&tracePath, "trace", "", "Pointer trace file to record (JSON lines)")
	flag.StringVar(&participant, "participant", "", "Participant identifier")
	flag.StringVar(&experiment, "experiment", "", "Experiment identifier")
	flag.StringVar(&targetURL, "url", "", "Target URL or application under study")
	flag.IntVar(&width, "width", 1920, "Screen width in pixels")
	flag.IntVar(&height, "height", 1080, "Screen height in pixels")
	flag.BoolVar(&list, "list", false, "List recorded sessions")
	flag.Int64Var(&info, "info", 0, "Show stream counts for a session ID")
	flag.Int64Var(&deleteID, "delete", 0, "Delete a session ID and all its events")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hcilog - Multimodal Interaction Recorder\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hcilog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hcilog --participant p01 --trace session.jsonl\n")
		fmt.Fprintf(os.Stderr, "  hcilog --list --data-dir /data/hcilog\n")
		fmt.Fprintf(os.Stderr, "  hcilog --info 3\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  HCILOG_DATA_DIR         Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  HCILOG_ARTIFACTS_TYPE   Artifact store type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  HCILOG_S3_BUCKET        S3 bucket for artifacts\n")
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("hcilog version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	_ = godotenv.Load()

	cfg, err := loadConfig(configFile, dataDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("Failed to prepare data directories: %v", err)
	}

	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		log.Fatalf("Failed to open session store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	switch {
	case list:
		err = listSessions(ctx, st)
	case info != 0:
		err = showInfo(ctx, st, info)
	case deleteID != 0:
		err = st.DeleteSession(ctx, deleteID)
		if err == nil {
			log.Printf("Deleted session %d", deleteID)
		}
	case tracePath != "":
		meta := types.SessionMeta{
			ParticipantID: participant,
			ExperimentID:  experiment,
			TargetURL:     targetURL,
			ScreenWidth:   width,
			ScreenHeight:  height,
		}
		err = record(ctx, cfg, st, meta, tracePath)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("hcilog: %v", err)
	}
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

// traceLine is one recorded pointer sample. t is an absolute offset in
// seconds from the start of the trace.
type traceLine struct {
	T      float64 `json:"t"`
	Type   string  `json:"type"`
	X      int     `json:"x"`
	Y      int     `json:"y"`
	Button string  `json:"button,omitempty"`
	DX     float64 `json:"dx,omitempty"`
	DY     float64 `json:"dy,omitempty"`
}

// loadTrace reads a JSON-lines pointer trace and converts absolute
// offsets into replay delays.
func loadTrace(path string) ([]capture.TimedSample[capture.PointerSample], time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open trace: %w", err)
	}
	defer f.Close()

	var (
		script []capture.TimedSample[capture.PointerSample]
		prev   float64
	)
	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line traceLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return nil, 0, fmt.Errorf("trace line %d: %w", lineNo, err)
		}

		sample := capture.PointerSample{X: line.X, Y: line.Y}
		switch line.Type {
		case "move":
			sample.Kind = capture.PointerKindMove
		case "click":
			sample.Kind = capture.PointerKindClick
			sample.Button = line.Button
			sample.Pressed = true
		case "scroll":
			sample.Kind = capture.PointerKindScroll
			sample.ScrollDX = line.DX
			sample.ScrollDY = line.DY
		default:
			return nil, 0, fmt.Errorf("trace line %d: unknown event type %q", lineNo, line.Type)
		}

		delay := line.T - prev
		if delay < 0 {
			return nil, 0, fmt.Errorf("trace line %d: timestamps must be non-decreasing", lineNo)
		}
		prev = line.T
		script = append(script, capture.TimedSample[capture.PointerSample]{
			Delay:  time.Duration(delay * float64(time.Second)),
			Sample: sample,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read trace: %w", err)
	}

	return script, time.Duration(prev * float64(time.Second)), nil
}

func record(ctx context.Context, cfg *config.Config, st *store.Store, meta types.SessionMeta, tracePath string) error {
	script, duration, err := loadTrace(tracePath)
	if err != nil {
		return err
	}
	if len(script) == 0 {
		return fmt.Errorf("trace %s contains no events", tracePath)
	}

	pointer := tracker.NewPointer(cfg.Trackers.Pointer, cfg.Buffer,
		capture.NewReplay(script), st.AppendPointerBatch)

	coord := session.NewCoordinator(st, pointer)

	printBanner(cfg, meta, tracePath, len(script), duration)

	sess, err := coord.Begin(ctx, meta)
	if err != nil {
		return err
	}
	log.Printf("Session %d started (uuid %s)", sess.ID, sess.UUID)
	if degraded := coord.Degraded(); len(degraded) > 0 {
		log.Printf("Degraded trackers: %v", degraded)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	// The replay is finished shortly after its last scheduled event;
	// a signal ends the session early.
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-time.After(duration + time.Second):
	}

	final, err := coord.End(context.Background())
	if final != nil {
		log.Printf("Session %d ended: status=%s events=%v", final.ID, final.Status, coord.Counts())
	}
	return err
}

func listSessions(ctx context.Context, st *store.Store) error {
	sessions, err := st.ListSessions(ctx, "", 100)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded.")
		return nil
	}

	fmt.Printf("%-5s %-36s %-12s %-10s %s\n", "ID", "UUID", "PARTICIPANT", "STATUS", "STARTED")
	for _, s := range sessions {
		started := time.Unix(int64(s.StartTime), 0).Format(time.RFC3339)
		fmt.Printf("%-5d %-36s %-12s %-10s %s\n", s.ID, s.UUID, s.ParticipantID, s.Status, started)
	}
	return nil
}

func showInfo(ctx context.Context, st *store.Store, sessionID int64) error {
	sess, err := st.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	counts, err := st.CountStreams(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Session %d (%s)\n", sess.ID, sess.UUID)
	fmt.Printf("  Participant: %s\n", sess.ParticipantID)
	fmt.Printf("  Status:      %s\n", sess.Status)
	fmt.Printf("  Pointer:     %d\n", counts.PointerEvents)
	fmt.Printf("  Screenshots: %d\n", counts.Screenshots)
	fmt.Printf("  Audio:       %d\n", counts.AudioSegments)
	fmt.Printf("  Emotion:     %d\n", counts.EmotionSamples)
	fmt.Printf("  Gaze:        %d\n", counts.GazeSamples)
	fmt.Printf("  Transcripts: %d\n", counts.Transcriptions)
	return nil
}

func printBanner(cfg *config.Config, meta types.SessionMeta, tracePath string, events int, duration time.Duration) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                        HCILOG                             ║")
	log.Printf("║           Multimodal Interaction Recorder                 ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Data Dir:    %s", cfg.DataDir)
	log.Printf("  Artifacts:   %s", cfg.Artifacts.Type)
	log.Printf("  Participant: %s", meta.ParticipantID)
	log.Printf("  Screen:      %dx%d", meta.ScreenWidth, meta.ScreenHeight)
	log.Printf("  Trace:       %s (%d events, %v)", tracePath, events, duration.Round(time.Millisecond))
	log.Printf("")
}
