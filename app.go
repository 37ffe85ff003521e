package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kwv/fidcal/landmark"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *landmark.Config
	Tracker    *landmark.SessionTracker
	MQTTClient *landmark.MQTTClient
	Publisher  *landmark.Publisher
	Results    *landmark.ResultCache

	// CLI Flags (effectively dependencies)
	ConfigFile    string
	DataDir       string
	ResultsCache  string
	RenderSession string
	RenderFormat  string
	OutputFile    string
	MqttMode      bool
	HttpMode      bool
	HttpPort      int
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Tracker: landmark.NewSessionTracker(nil),
		Results: landmark.NewResultCache(),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.ResultsCache = opts.ResultsCache
	a.RenderSession = opts.RenderSession
	a.RenderFormat = opts.RenderFormat
	a.OutputFile = opts.OutputFile
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
}

// resolvePaths resolves config and cache paths relative to data-dir when
// the flags still point at their defaults.
func (a *App) resolvePaths() (configPath, cachePath string) {
	configPath = a.ConfigFile
	cachePath = a.ResultsCache

	if a.DataDir != "." && a.DataDir != "" {
		if configPath == "config.yaml" {
			configPath = filepath.Join(a.DataDir, "config.yaml")
		}
		if cachePath == landmark.DefaultResultsCachePath {
			cachePath = filepath.Join(a.DataDir, landmark.DefaultResultsCachePath)
		}
	}
	return configPath, cachePath
}

// loadSetup loads the configuration and registers every session with a
// fresh tracker tuned to the configured collinearity threshold.
func (a *App) loadSetup(configPath string) {
	config, err := landmark.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v (looked at %s)", err, configPath)
	}
	a.Config = config
	log.Printf("Loaded config from %s", configPath)

	est := landmark.NewEstimator()
	if config.EigenvalueThreshold > 0 {
		est.EigenvalueThreshold = config.EigenvalueThreshold
	}
	a.Tracker = landmark.NewSessionTracker(landmark.NewController(est))

	if err := config.RegisterSessions(a.Tracker); err != nil {
		log.Fatalf("Failed to register sessions: %v", err)
	}
}

// landmarkExport is the on-disk form of a captured landmark pair:
// landmarks-<session>.json with "from" and "to" lists in either wire
// format DecodePoints accepts.
type landmarkExport struct {
	From json.RawMessage `json:"from"`
	To   json.RawMessage `json:"to"`
}

// loadLandmarkFiles loads every landmarks-*.json export from the data
// directory, keyed by session ID taken from the filename.
func (a *App) loadLandmarkFiles(dataDir string) map[string]landmarkExport {
	exports := make(map[string]landmarkExport)

	pattern := filepath.Join(dataDir, "landmarks-*.json")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return exports
	}

	for _, file := range files {
		base := filepath.Base(file)
		name := strings.TrimPrefix(base, "landmarks-")
		name = strings.TrimSuffix(name, ".json")

		data, err := os.ReadFile(file)
		if err != nil {
			log.Printf("Warning: Failed to read %s: %v", file, err)
			continue
		}

		var export landmarkExport
		if err := json.Unmarshal(data, &export); err != nil {
			log.Printf("Warning: Failed to parse %s: %v", file, err)
			continue
		}
		exports[name] = export
	}

	return exports
}

// feedExport pushes an export's landmark lists into a session
func (a *App) feedExport(sessionID string, export landmarkExport) error {
	if export.From != nil {
		points, err := landmark.DecodePoints(export.From)
		if err != nil {
			return fmt.Errorf("'from' list: %w", err)
		}
		if _, err := a.Tracker.SetPoints(sessionID, landmark.FromList, points); err != nil {
			return err
		}
	}
	if export.To != nil {
		points, err := landmark.DecodePoints(export.To)
		if err != nil {
			return fmt.Errorf("'to' list: %w", err)
		}
		if _, err := a.Tracker.SetPoints(sessionID, landmark.ToList, points); err != nil {
			return err
		}
	}
	return nil
}

// RunCalibration registers landmark exports, recomputes every session
// and writes the results cache.
func (a *App) RunCalibration() {
	configPath, cachePath := a.resolvePaths()
	a.loadSetup(configPath)

	exports := a.loadLandmarkFiles(a.DataDir)
	if len(exports) == 0 {
		log.Fatalf("No landmarks-*.json files found in %s", a.DataDir)
	}
	fmt.Printf("Found %d landmark export(s)\n\n", len(exports))

	for _, id := range a.Tracker.Sessions() {
		export, ok := exports[id]
		if !ok {
			fmt.Printf("=== %s ===\nNo landmark export, skipping\n\n", id)
			continue
		}

		if err := a.feedExport(id, export); err != nil {
			log.Printf("Warning: %s: %v", id, err)
			continue
		}

		result, err := a.Tracker.Recompute(id)
		if err != nil {
			log.Printf("Warning: %s: %v", id, err)
			continue
		}

		fmt.Printf("=== %s ===\n", id)
		fmt.Printf("Status: %s\n", result.StatusMessage)
		if lt, ok := result.Transform.(landmark.LinearTransform); ok {
			for _, row := range lt.Matrix {
				fmt.Printf("  %10.4f %10.4f %10.4f %10.4f\n", row[0], row[1], row[2], row[3])
			}
		}
		fmt.Println()

		a.Results.Update(id, result)
	}

	if err := landmark.SaveResults(cachePath, a.Results); err != nil {
		log.Fatalf("Failed to save results cache: %v", err)
	}
	fmt.Printf("Results written to %s\n", cachePath)
}

// RunRender calibrates one session from its landmark export and writes
// its residual plot.
func (a *App) RunRender() {
	configPath, _ := a.resolvePaths()
	a.loadSetup(configPath)

	sessionID := a.RenderSession
	if sessionID == "" {
		sessionID = a.Config.Sessions[0].ID
	}
	if a.Config.SessionByID(sessionID) == nil {
		log.Fatalf("Unknown session %q", sessionID)
	}

	exports := a.loadLandmarkFiles(a.DataDir)
	export, ok := exports[sessionID]
	if !ok {
		log.Fatalf("No landmark export for session %s in %s", sessionID, a.DataDir)
	}
	if err := a.feedExport(sessionID, export); err != nil {
		log.Fatalf("Failed to load landmarks for %s: %v", sessionID, err)
	}

	result, err := a.Tracker.Recompute(sessionID)
	if err != nil {
		log.Fatalf("Recompute failed: %v", err)
	}
	if !result.Success {
		log.Fatalf("Calibration failed: %s", result.StatusMessage)
	}

	from, to, err := a.Tracker.Points(sessionID)
	if err != nil {
		log.Fatalf("Failed to read session points: %v", err)
	}

	output := a.OutputFile
	switch a.RenderFormat {
	case "svg":
		if filepath.Ext(output) == ".png" {
			output = strings.TrimSuffix(output, ".png") + ".svg"
		}
		r := landmark.NewVectorResidualRenderer(from, to, result.Transform)
		f, err := os.Create(output)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", output, err)
		}
		defer f.Close()
		if err := r.RenderToSVG(f); err != nil {
			log.Fatalf("Failed to render SVG: %v", err)
		}
	case "png":
		r := landmark.NewResidualRenderer(from, to, result.Transform, result.RMSError)
		if err := r.RenderPNGFile(output); err != nil {
			log.Fatalf("Failed to render PNG: %v", err)
		}
	default:
		log.Fatalf("Unknown render format %q (want png or svg)", a.RenderFormat)
	}

	fmt.Printf("%s: %s\n", sessionID, result.StatusMessage)
	fmt.Printf("Residual plot written to %s\n", output)
}

// RunService starts the long-running MQTT and/or HTTP service
func (a *App) RunService() {
	fmt.Println("Starting fidcal service...")

	configPath, cachePath := a.resolvePaths()
	a.loadSetup(configPath)
	config := a.Config

	// Previous results are informational only; sessions recompute from
	// fresh landmark data.
	cache, err := landmark.LoadResults(cachePath)
	if err != nil {
		log.Printf("Warning: Failed to load results cache %s: %v", cachePath, err)
	} else if cache != nil {
		a.Results = cache
		log.Printf("Loaded results cache from %s (%d sessions)", cachePath, len(cache.Sessions))
	} else {
		log.Printf("No results cache found at %s, starting fresh", cachePath)
	}

	// Every recompute outcome is cached to disk and, once MQTT is up,
	// published.
	a.Tracker.SetResultHandler(func(sessionID string, result landmark.CalibrationResult) {
		a.Results.Update(sessionID, result)
		if err := landmark.SaveResults(cachePath, a.Results); err != nil {
			log.Printf("Error saving results cache: %v", err)
		}

		if a.Publisher != nil {
			if err := a.Publisher.PublishResult(sessionID, result); err != nil {
				log.Printf("Error publishing result for %s: %v", sessionID, err)
			}
		}
	})

	// Seed sessions from landmark exports if present
	exports := a.loadLandmarkFiles(a.DataDir)
	for id, export := range exports {
		if err := a.feedExport(id, export); err != nil {
			log.Printf("Warning: initial landmarks for %s: %v", id, err)
		}
	}
	if len(exports) > 0 {
		fmt.Printf("Loaded %d initial landmark export(s)\n", len(exports))
	}

	if a.MqttMode {
		mqttClient, err := landmark.InitMQTT(config, a.Tracker)
		if err != nil {
			log.Fatalf("Failed to initialize MQTT: %v", err)
		}
		if mqttClient == nil {
			log.Fatal("MQTT broker not configured in config.yaml")
		}
		a.MQTTClient = mqttClient

		a.Publisher = landmark.NewPublisher(mqttClient.GetClient())
		fmt.Println("MQTT result publisher initialized")
	}

	if a.HttpMode {
		httpServer := newHTTPServer(a.Tracker, config)
		go func() {
			addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := http.ListenAndServe(addr, httpServer); err != nil {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topic trees:")
		for _, se := range config.Sessions {
			if se.Topic != "" {
				fmt.Printf("    - %s/{points,probe}/{from,to}, %s/event (%s)\n", se.Topic, se.Topic, se.ID)
			}
		}
		publishPrefix := config.MQTT.PublishPrefix
		if publishPrefix == "" {
			publishPrefix = "fidcal"
		}
		fmt.Printf("  Publishing to: %s/{sessionID}/result\n", publishPrefix)
		fmt.Printf("  Combined results: %s/results\n", publishPrefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health                             - Health check")
		fmt.Println("  GET  /api/sessions                       - Session list with status")
		fmt.Println("  GET  /api/sessions/{id}/status           - Calibration status text")
		fmt.Println("  GET  /api/sessions/{id}/result           - Last result with matrix")
		fmt.Println("  POST /api/sessions/{id}/points/{from|to} - Replace a landmark list")
		fmt.Println("  POST /api/sessions/{id}/recompute        - Explicit recompute")
		fmt.Println("  PUT  /api/sessions/{id}/mode             - Switch Manual/Automatic")
		fmt.Println("  GET  /api/sessions/{id}/residuals.png    - Residual plot (raster)")
		fmt.Println("  GET  /api/sessions/{id}/residuals.svg    - Residual plot (vector)")
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	fmt.Println("\nShutting down service...")
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
}
