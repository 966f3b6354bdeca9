// Command gen is the thin CLI wiring for the sprite-sheet pipeline (spec
// §6): it parses the external flag/subcommand contract and drives
// spritegen.Pipeline, the same way the teacher's cmd/server/main.go only
// wires flags into mbflow.NewExecutor rather than reimplementing it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seanwinslow28/spritegen"
	"github.com/seanwinslow28/spritegen/internal/application/export"
	"github.com/seanwinslow28/spritegen/internal/application/manifest"
	"github.com/seanwinslow28/spritegen/internal/domain"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/api/rest"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/api/ws"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/config"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/metrics"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/runindex"
	"github.com/seanwinslow28/spritegen/internal/infrastructure/store"
	pkgmanifest "github.com/seanwinslow28/spritegen/pkg/manifest"
)

// Exit codes, spec §6: 0 success/release-ready, 1 validation failed,
// 2 stopped, 3 system/dependency error.
const (
	exitOK             = 0
	exitValidationFail = 1
	exitStopped        = 2
	exitSystemError    = 3
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(exitValidationFail)
	}

	cmd, rest := os.Args[1], os.Args[2:]
	var code int
	switch cmd {
	case "gen":
		code = runGen(rest)
	case "doctor":
		code = runDoctor()
	case "schema":
		code = runSchema()
	case "inspect":
		code = runInspect(rest)
	case "validate":
		code = runValidate(rest)
	case "guide":
		code = runGuide()
	case "demo":
		code = runDemo(rest)
	default:
		usage()
		code = exitValidationFail
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gen <gen|doctor|schema|inspect|validate|guide|demo> [flags]")
}

func flagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func runGen(args []string) int {
	fs := flagSet("gen")
	move := fs.String("move", "", "move identifier, e.g. character/move_name")
	interactive := fs.Bool("interactive", false, "start the session-bridge HTTP/websocket servers and block for review")
	port := fs.Int("port", 8090, "port for --interactive's HTTP/websocket surface")
	manifestPath := fs.String("manifest", "manifest.yaml", "path to the manifest YAML file")
	skipValidation := fs.Bool("skip-validation", false, "skip the CLI's up-front manifest check (the run still validates; an invalid manifest exits 3)")
	allowValidationFail := fs.Bool("allow-validation-fail", false, "print up-front validation errors instead of exiting 1 (the run still validates; an invalid manifest exits 3)")
	frames := fs.Int("frames", 0, "override identity.frame_count (0 = use manifest value)")
	resume := fs.String("resume", "", "run_id of a prior run directory to resume")
	force := fs.Bool("force", false, "bypass the manifest-hash resume guard")
	if err := fs.Parse(args); err != nil {
		return exitValidationFail
	}

	cfg := config.Load()
	log := spritegen.NewLogger(logLevel(cfg), os.Stderr)

	raw, err := pkgmanifest.Load(*manifestPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load manifest")
		return exitSystemError
	}
	if *move != "" && *move != raw.Identity.Move {
		log.Warn().Str("flag_move", *move).Str("manifest_move", raw.Identity.Move).
			Msg("--move does not match manifest identity.move; proceeding with the manifest value")
	}
	if *frames > 0 {
		raw.Identity.FrameCount = *frames
	}

	if !*skipValidation {
		if errs := manifest.Validate(&raw); len(errs) > 0 {
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "validation: %s: %s (%s)\n", e.Field, e.Message, e.Hint)
			}
			if !*allowValidationFail {
				return exitValidationFail
			}
		}
	}

	runID := *resume
	if runID == "" {
		runID = uuid.NewString()
	}
	runDir := filepath.Join(cfg.RunDirRoot, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Error().Err(err).Msg("failed to create run directory")
		return exitSystemError
	}
	if err := os.MkdirAll(filepath.Join(runDir, "logs"), 0o755); err == nil {
		logPath := filepath.Join(runDir, "logs", "pipeline.log")
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); err == nil {
			defer f.Close()
			log = spritegen.NewLogger(logLevel(cfg), f)
		}
	}

	gen := spritegen.NewOpenAIGenerator(cfg.ImageGenAPIKey, raw.Generator.Model)
	pipeline := spritegen.NewPipeline(runDir, gen, log)

	collector := metrics.New()
	pipeline.Observe(collector)
	if cfg.CallbackURL != "" {
		pipeline.Observe(spritegen.NewHTTPCallbackObserver(spritegen.HTTPCallbackObserverConfig{URL: cfg.CallbackURL}))
	}

	var httpServer *http.Server
	if *interactive {
		httpServer = startSessionServers(pipeline, cfg, *port, log)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Info().Msg("interrupt received, requesting cooperative abort")
		pipeline.Abort()
	}()

	var run *domain.RunState
	if *resume != "" {
		run, err = pipeline.Resume(ctx, raw, *manifestPath, *force)
	} else {
		run, err = pipeline.Run(ctx, raw, *manifestPath)
	}

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if err != nil {
		log.Error().Err(err).Msg("run failed")
		return exitSystemError
	}

	summary := collector.Finalize(run.RunID, run.FrameStates)
	if err := collector.Write(pipeline.Store(), summary); err != nil {
		log.Error().Err(err).Msg("failed to write summary.json")
	}
	if cfg.RunIndexDSN != "" {
		if idx, err := spritegen.NewRunIndex(cfg.RunIndexDSN); err == nil {
			defer idx.Close()
			_ = idx.Upsert(context.Background(), raw.Identity.Character, raw.Identity.Move, runDir, summary)
		}
	}

	fmt.Printf("run %s finished: %s (%d/%d approved)\n", runID, run.RunStatus, summary.Frames.Approved, summary.Frames.Total)

	switch run.RunStatus {
	case domain.RunStatusCompleted:
		return exitOK
	case domain.RunStatusStopped:
		return exitStopped
	default:
		return exitSystemError
	}
}

func startSessionServers(p *spritegen.Pipeline, cfg *config.Config, port int, log zerolog.Logger) *http.Server {
	auth := ws.NewJWTAuth(cfg.JWTSecret)
	hub := ws.NewHub(log)
	go hub.Run()
	p.Observe(ws.NewObserverBridge(hub))

	resolver := func(runID string) (*store.Store, error) {
		return p.Store(), nil
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/ws", ws.NewHandler(hub, auth, log))
	mux.Handle("/", rest.NewServer(resolver, auth, log))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("session server failed")
		}
	}()
	return srv
}

func runDoctor() int {
	ok := true
	cfg := config.Load()

	if cfg.ImageGenAPIKey == "" {
		fmt.Println("[FAIL] IMAGEGEN_API_KEY is not set")
		ok = false
	} else {
		fmt.Println("[OK] IMAGEGEN_API_KEY is set")
	}

	if _, err := exec.LookPath(cfg.PackerBin); err != nil {
		fmt.Printf("[FAIL] atlas packer binary %q not found on PATH\n", cfg.PackerBin)
		ok = false
	} else {
		fmt.Printf("[OK] atlas packer binary %q found\n", cfg.PackerBin)
	}

	if err := os.MkdirAll(cfg.RunDirRoot, 0o755); err != nil {
		fmt.Printf("[FAIL] run directory root %q is not writable: %v\n", cfg.RunDirRoot, err)
		ok = false
	} else {
		fmt.Printf("[OK] run directory root %q is writable\n", cfg.RunDirRoot)
	}

	if !ok {
		return exitSystemError
	}
	return exitOK
}

func runSchema() int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest.Defaults); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}
	return exitOK
}

func runInspect(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: gen inspect <run_id>")
		return exitValidationFail
	}
	cfg := config.Load()
	s := store.New(filepath.Join(cfg.RunDirRoot, args[0]))
	var run domain.RunState
	if err := s.ReadJSONValidated(s.Path("state.json"), &run); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(run)
	return exitOK
}

func runValidate(args []string) int {
	fs := flagSet("validate")
	allowValidationFail := fs.Bool("allow-validation-fail", false, "downgrade a failed atlas validation to debug-only instead of blocking export")
	if err := fs.Parse(args); err != nil {
		return exitValidationFail
	}
	positional := fs.Args()
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "usage: gen validate [--allow-validation-fail] <run_id>")
		return exitValidationFail
	}

	cfg := config.Load()
	s := store.New(filepath.Join(cfg.RunDirRoot, positional[0]))
	var lock domain.LockFile
	if err := s.ReadJSONValidated(s.Path("manifest.lock.json"), &lock); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}

	result, err := spritegen.RunExport(context.Background(), s, cfg.PackerBin, s.Path("approved"),
		lock.Manifest.Identity.Move, approvedIndices(s, &lock), lock.Manifest.Canvas.TargetSize,
		lock.Manifest.Export.PackerFlags, *allowValidationFail)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}

	for _, r := range result.Checklist {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s: %s\n", status, r.Name, r.Detail)
	}
	if result.ValidationError != "" {
		fmt.Fprintln(os.Stderr, result.ValidationError)
	}

	fmt.Println(string(result.Status))
	switch result.Status {
	case export.ReleaseReady, export.ReleaseDebugOnly:
		return exitOK
	default:
		return exitValidationFail
	}
}

func approvedIndices(s *store.Store, lock *domain.LockFile) []int {
	var run domain.RunState
	if err := s.ReadJSONValidated(s.Path("state.json"), &run); err != nil {
		return nil
	}
	return run.ApprovedFrames
}

func runGuide() int {
	fmt.Println(`sprite-sheet pipeline quickstart:
  1. gen demo --out ./demo-move     write a starter manifest.yaml + directory layout
  2. gen doctor                     confirm IMAGEGEN_API_KEY, the atlas packer binary, and RUN_DIR_ROOT are ready
  3. gen gen --manifest ./demo-move/manifest.yaml --frames 4
  4. gen inspect <run_id>           view the persisted run state
  5. gen validate <run_id>          checklist, pack, and validate the atlas; prints the release status
`)
	return exitOK
}

func runDemo(args []string) int {
	fs := flagSet("demo")
	out := fs.String("out", "./demo-move", "directory to scaffold a starter manifest into")
	if err := fs.Parse(args); err != nil {
		return exitValidationFail
	}

	if err := os.MkdirAll(*out, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}

	m := pkgmanifest.New().
		Identity("demo_character", "idle", "v1", 4, true).
		Anchor(filepath.Join(*out, "anchor.png")).
		Prompts(
			"a pixel-art side-scroller character, idle stance, transparent background",
			"frame {{frame_index}} of {{frame_count}}, weight shifted slightly",
			"keep palette, proportions, and silhouette identical to the anchor",
			"no background, no watermark, no extra limbs",
		).
		Generator("openai", "gpt-image-1", domain.SeedPolicyFixedThenRandom, 6).
		Canvas(512, 128).
		Build()

	path := filepath.Join(*out, "manifest.yaml")
	if err := pkgmanifest.Save(path, m); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitSystemError
	}
	fmt.Printf("wrote %s (add an anchor.png beside it before running gen)\n", path)
	return exitOK
}

func logLevel(cfg *config.Config) string {
	if cfg.Debug {
		return "debug"
	}
	return "info"
}
