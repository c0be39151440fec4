package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/banshee-data/speedcam/internal/api"
	"github.com/banshee-data/speedcam/internal/camera"
	"github.com/banshee-data/speedcam/internal/config"
	"github.com/banshee-data/speedcam/internal/fsutil"
	"github.com/banshee-data/speedcam/internal/monitoring"
	"github.com/banshee-data/speedcam/internal/pipeline"
	"github.com/banshee-data/speedcam/internal/report"
	"github.com/banshee-data/speedcam/internal/security"
	"github.com/banshee-data/speedcam/internal/speed"
	"github.com/banshee-data/speedcam/internal/storage"
	"github.com/banshee-data/speedcam/internal/timeutil"
	"github.com/banshee-data/speedcam/internal/track"
)

var (
	mode       = flag.String("mode", "video", "Capture mode: video or camera")
	input      = flag.String("input", "", "Input video file (video mode)")
	device     = flag.Int("camera", 0, "Capture device index (camera mode)")
	output     = flag.String("output", "", "Annotated output video file (optional)")
	dbFile     = flag.String("db", "speedcam.db", "SQLite database file (empty to disable persistence)")
	listen     = flag.String("listen", ":8080", "Listen address for the status API")
	configPath = flag.String("config", "", "Tuning config JSON (defaults from config/tuning.defaults.json)")
	exportDir  = flag.String("export", "export", "Directory for CSV and chart output")
	migrations = flag.String("migrations", "migrations", "Migrations directory")
	display    = flag.Bool("display", false, "Show annotated frames in a window")

	// Tuning overrides, zero means use the config value.
	laneWidth = flag.Float64("lane-width", 0, "Reference span in meters (overrides config)")
	linePos   = flag.Float64("detection-line", 0, "Detection line as a fraction of frame height (overrides config)")
	minArea   = flag.Float64("min-area", 0, "Minimum contour area in pixels (overrides config)")
)

func main() {
	flag.Parse()

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	} else if loaded, err := config.LoadTuningConfig(config.DefaultConfigPath); err == nil {
		cfg = loaded
	}

	if *laneWidth > 0 {
		cfg.ReferenceMeters = laneWidth
	}
	if *linePos > 0 {
		cfg.DetectionLinePosition = linePos
	}
	if *minArea > 0 {
		cfg.MinVehicleArea = minArea
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid tuning values: %v", err)
	}

	var source *camera.Source
	var sourceName string
	switch *mode {
	case "video":
		if *input == "" {
			log.Fatal("video mode requires -input")
		}
		var err error
		source, err = camera.OpenVideoFile(*input)
		if err != nil {
			log.Fatalf("failed to open input: %v", err)
		}
		sourceName = *input
	case "camera":
		var err error
		source, err = camera.OpenCamera(*device)
		if err != nil {
			log.Fatalf("failed to open camera: %v", err)
		}
		sourceName = fmt.Sprintf("camera:%d", *device)
	default:
		log.Fatalf("unknown mode %q (want video or camera)", *mode)
	}
	defer source.Close()

	width, height := source.FrameSize()
	lineY := cfg.GetDetectionLinePosition() * float64(height)
	sessionID := uuid.NewString()

	pipe, err := pipeline.New(pipeline.Config{
		SessionID:       sessionID,
		RefPixels:       cfg.GetReferencePixels(),
		RefMeters:       cfg.GetReferenceMeters(),
		MatchThreshold:  cfg.GetMatchThreshold(),
		MaxDisappeared:  cfg.GetMaxDisappearedFrames(),
		LineY:           lineY,
		Ratio:           track.ParseRatioPolicy(cfg.GetMatchRatio()),
		SmoothingWindow: cfg.GetSpeedSmoothingWindow(),
		Clock:           timeutil.RealClock{},
	})
	if err != nil {
		log.Fatalf("failed to build pipeline: %v", err)
	}

	var db *storage.DB
	if *dbFile != "" {
		db, err = storage.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateUp(*migrations); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		if err := db.CreateSession(storage.SessionSummary{
			SessionID: sessionID,
			Source:    sourceName,
			StartedAt: time.Now().UTC(),
		}); err != nil {
			log.Fatalf("failed to create session: %v", err)
		}
	}

	detector := camera.NewDetector(camera.DetectorParams{
		History:       cfg.GetBackgroundHistory(),
		VarThreshold:  cfg.GetBackgroundVarThreshold(),
		DetectShadows: cfg.GetDetectShadows(),
		MinArea:       cfg.GetMinVehicleArea(),
	})
	defer detector.Close()

	annotator, err := camera.NewAnnotator(*output, source.FPS(), width, height, int(lineY))
	if err != nil {
		log.Fatalf("failed to open output: %v", err)
	}
	defer annotator.Close()

	monitoring.Logf("session %s: %s %dx%d @ %.1f fps, line y=%.0f",
		sessionID, sourceName, width, height, source.FPS(), lineY)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Capture loop: read, detect, track. Cancels the context when the
	// stream ends so the other routines shut down too.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer stop()
		if err := runCapture(ctx, source, detector, pipe, annotator, *display); err != nil {
			log.Printf("capture loop failed: %v", err)
		}
		log.Print("capture routine terminated")
	}()

	// Periodic save loop.
	if db != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSaver(ctx, timeutil.RealClock{}, cfg.GetSaveInterval(), pipe, db)
			log.Print("save routine terminated")
		}()
	}

	// HTTP status API.
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(api.NewServer(pipe, db, cfg.GetRateWindow()).ServeMux()),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("failed to start server: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()

	if err := finishSession(pipe, db, cfg, *exportDir); err != nil {
		log.Printf("failed to finalise session: %v", err)
	}
	log.Print("shutdown complete")
}

// runCapture drives the per-frame loop until the stream ends or the
// context is cancelled.
func runCapture(ctx context.Context, source *camera.Source, detector *camera.Detector,
	pipe *pipeline.Pipeline, annotator *camera.Annotator, display bool) error {

	img := gocv.NewMat()
	defer img.Close()

	var window *gocv.Window
	if display {
		window = gocv.NewWindow("speedcam")
		defer window.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		index, ts, ok := source.Read(&img)
		if !ok {
			monitoring.Logf("capture: stream ended at frame %d", index)
			return nil
		}

		detections := detector.Detect(img, index, ts)
		res, err := pipe.ProcessFrame(camera.Frame{Index: index, Timestamp: ts, Detections: detections})
		if err != nil {
			return err
		}

		annotations := buildAnnotations(res)
		if err := annotator.Draw(&img, annotations, res.Count); err != nil {
			return err
		}

		if window != nil {
			window.IMShow(img)
			if window.WaitKey(1) == 'q' {
				return nil
			}
		}
	}
}

func buildAnnotations(res pipeline.FrameResult) []camera.Annotation {
	annotations := make([]camera.Annotation, 0, len(res.Tracks))
	for _, t := range res.Tracks {
		label := fmt.Sprintf("id %d", t.ID)
		if kmh, ok := res.SpeedsKMH[t.ID]; ok {
			label = fmt.Sprintf("id %d %.1f km/h", t.ID, kmh)
		}
		annotations = append(annotations, camera.Annotation{
			Rect:    imageRect(t.Box.X, t.Box.Y, t.Box.W, t.Box.H),
			Label:   label,
			Crossed: t.Crossed,
		})
	}
	return annotations
}

func imageRect(x, y, w, h float64) image.Rectangle {
	return image.Rect(int(x), int(y), int(x+w), int(y+h))
}

// runSaver flushes buffered records and track rollups on a fixed
// interval until the context is cancelled.
func runSaver(ctx context.Context, clock timeutil.Clock, interval time.Duration,
	pipe *pipeline.Pipeline, db *storage.DB) {

	ticker := clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			flush(pipe, db)
		case <-ctx.Done():
			return
		}
	}
}

func flush(pipe *pipeline.Pipeline, db *storage.DB) {
	if records := pipe.DrainRecords(); len(records) > 0 {
		if err := db.InsertDetections(records); err != nil {
			log.Printf("failed to save detections: %v", err)
		}
	}
	for _, summary := range pipe.TrackSummaries() {
		if err := db.UpsertTrackSummary(summary); err != nil {
			log.Printf("failed to save track summary %d: %v", summary.TrackID, err)
		}
	}
}

// finishSession writes the final rollup, the speed distribution, and
// the CSV/chart exports.
func finishSession(pipe *pipeline.Pipeline, db *storage.DB, cfg *config.TuningConfig, exportDir string) error {
	samples := pipe.SpeedSamplesKMH()
	percentiles := speed.ComputePercentiles(samples)
	buckets := speed.Distribution(samples, cfg.GetSpeedBinWidthKMH())

	minSpeed, maxSpeed := 0.0, 0.0
	for i, s := range samples {
		if i == 0 || s < minSpeed {
			minSpeed = s
		}
		if s > maxSpeed {
			maxSpeed = s
		}
	}

	ended := time.Now().UTC()
	session := storage.SessionSummary{
		SessionID:     pipe.SessionID(),
		VehicleCount:  pipe.Counter().Count(),
		RatePerMinute: pipe.Counter().Rate(),
		AvgSpeedKMH:   speed.Mean(samples),
		MinSpeedKMH:   minSpeed,
		MaxSpeedKMH:   maxSpeed,
		P50SpeedKMH:   percentiles.P50,
		P85SpeedKMH:   percentiles.P85,
		P95SpeedKMH:   percentiles.P95,
		EndedAt:       &ended,
	}

	distribution := make([]storage.DistributionRow, 0, len(buckets))
	for _, b := range buckets {
		distribution = append(distribution, storage.DistributionRow{
			SessionID: pipe.SessionID(),
			LowKMH:    b.LowKMH,
			HighKMH:   b.HighKMH,
			Count:     int64(b.Count),
			Percent:   b.Percent,
		})
	}

	var records []storage.DetectionRecord
	if db != nil {
		flush(pipe, db)
		if err := db.ReplaceDistribution(pipe.SessionID(), distribution); err != nil {
			return err
		}
		if err := db.FinishSession(session); err != nil {
			return err
		}
		stored, err := db.GetSession(pipe.SessionID())
		if err != nil {
			return err
		}
		session = stored
		records, err = db.ListDetections(pipe.SessionID())
		if err != nil {
			return err
		}
	} else {
		records = pipe.DrainRecords()
	}

	if err := security.ValidateExportPath(exportDir); err != nil {
		return err
	}
	exporter, err := report.NewExporter(fsutil.OSFileSystem{}, exportDir)
	if err != nil {
		return err
	}
	if _, err := exporter.WriteDetectionsCSV(pipe.SessionID(), records); err != nil {
		return err
	}
	if _, err := exporter.WriteSummaryCSV(session, pipe.TrackSummaries()); err != nil {
		return err
	}
	if _, err := exporter.WriteDistributionCSV(pipe.SessionID(), distribution); err != nil {
		return err
	}
	if _, err := exporter.RenderChartsHTML(session, distribution); err != nil {
		return err
	}
	if _, err := exporter.SavePNGHistogram(pipe.SessionID(), distribution); err != nil {
		return err
	}

	monitoring.Logf("session %s: %d vehicles, %.2f/min, p85 %.1f km/h",
		session.SessionID, session.VehicleCount, session.RatePerMinute, session.P85SpeedKMH)
	return nil
}
