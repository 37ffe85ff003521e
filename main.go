package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries every CLI option in one bundle so run() can hand
// them to the application without touching global flag state.
type AppOptions struct {
	ConfigFile    string
	DataDir       string
	ResultsCache  string
	CalibrateOnly bool
	RenderOnly    bool
	RenderSession string
	RenderFormat  string
	OutputFile    string
	MqttMode      bool
	HttpMode      bool
	HttpPort      int
}

// appRunner is the surface main dispatches to; App implements it.
type appRunner interface {
	ApplyOptions(opts AppOptions)
	RunCalibration()
	RunRender()
	RunService()
}

// run parses args and dispatches to the application. Split out from
// main so the flag wiring is testable.
func run(args []string, out io.Writer, app appRunner) error {
	fs := flag.NewFlagSet("fidcal", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file")
	dataDir := fs.String("data-dir", ".", "Directory containing landmark export files")
	resultsCache := fs.String("results-cache", ".calibration-results.json", "Path to calibration results cache file")
	calibrateOnly := fs.Bool("calibrate", false, "Run calibration from landmark exports and exit")
	renderOnly := fs.Bool("render", false, "Render a residual plot and exit")
	renderSession := fs.String("session", "", "Session to render (default: first configured session)")
	renderFormat := fs.String("format", "png", "Residual plot format: png or svg")
	outputFile := fs.String("output", "residuals.png", "Output file for --render mode")
	mqttMode := fs.Bool("mqtt", false, "Run MQTT service mode for live landmark streams")
	httpMode := fs.Bool("http", false, "Enable HTTP API server")
	httpPort := fs.Int("http-port", 8080, "HTTP server port (default 8080)")

	fs.Usage = func() {
		fmt.Fprintln(out, "Usage of fidcal:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "fidcal version: %s\n", Version)

	opts := AppOptions{
		ConfigFile:    *configFile,
		DataDir:       *dataDir,
		ResultsCache:  *resultsCache,
		CalibrateOnly: *calibrateOnly,
		RenderOnly:    *renderOnly,
		RenderSession: *renderSession,
		RenderFormat:  *renderFormat,
		OutputFile:    *outputFile,
		MqttMode:      *mqttMode,
		HttpMode:      *httpMode,
		HttpPort:      *httpPort,
	}
	app.ApplyOptions(opts)

	switch {
	case opts.CalibrateOnly:
		app.RunCalibration()
	case opts.RenderOnly:
		app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		app.RunService()
	default:
		fmt.Fprintln(out, "fidcal service starting...")
		fmt.Fprintln(out, "Use --calibrate to register landmark exports and exit")
		fmt.Fprintln(out, "Use --render to write a residual plot")
		fmt.Fprintln(out, "Use --mqtt to run MQTT service mode")
		fmt.Fprintln(out, "Use --http to run the HTTP API server")
		fmt.Fprintln(out, "Use --mqtt --http to run both together")
		fmt.Fprintln(out, "\nConfiguration:")
		fmt.Fprintln(out, "  config.yaml - MQTT settings and calibration sessions")
		fmt.Fprintln(out, "  .calibration-results.json - Last result per session (cached)")
	}
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		os.Exit(2)
	}
}
