package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/fidcal/landmark"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(tracker *landmark.SessionTracker, config *landmark.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		writeJSON(w, http.StatusOK, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			Sessions  int       `json:"sessions"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			Sessions:  len(tracker.Sessions()),
		})
	})

	// Session list with per-session status
	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		type sessionInfo struct {
			ID            string `json:"id"`
			Mode          string `json:"mode"`
			UpdateMode    string `json:"updateMode"`
			StatusMessage string `json:"statusMessage"`
		}

		infos := make([]sessionInfo, 0)
		for _, id := range tracker.Sessions() {
			info := sessionInfo{ID: id}
			if se := config.SessionByID(id); se != nil {
				info.Mode = se.Mode
			}
			if mode, err := tracker.UpdateMode(id); err == nil {
				info.UpdateMode = mode.String()
			}
			if msg, err := tracker.StatusMessage(id); err == nil {
				info.StatusMessage = msg
			}
			infos = append(infos, info)
		}
		writeJSON(w, http.StatusOK, infos)
	})

	// Per-session operations: /api/sessions/{id}/...
	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) < 2 || parts[0] == "" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		handleSession(w, r, tracker, parts[0], parts[1])
	})

	return mux
}

// handleSession routes one session's sub-endpoints
func handleSession(w http.ResponseWriter, r *http.Request, tracker *landmark.SessionTracker, id, op string) {
	switch {
	case op == "status" && r.Method == http.MethodGet:
		msg, err := tracker.StatusMessage(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"statusMessage": msg})

	case op == "result" && r.Method == http.MethodGet:
		result, err := tracker.Result(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		if result == nil {
			http.Error(w, "No calibration has run yet", http.StatusNotFound)
			return
		}

		response := map[string]interface{}{
			"rmsError":      result.RMSError,
			"statusMessage": result.StatusMessage,
			"success":       result.Success,
		}
		if lt, ok := result.Transform.(landmark.LinearTransform); ok {
			response["matrix"] = lt.Matrix
		}
		writeJSON(w, http.StatusOK, response)

	case strings.HasPrefix(op, "points/") && r.Method == http.MethodPost:
		handleSetPoints(w, r, tracker, id, strings.TrimPrefix(op, "points/"))

	case op == "recompute" && r.Method == http.MethodPost:
		result, err := tracker.Recompute(id)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)

	case op == "mode" && r.Method == http.MethodPut:
		var body struct {
			UpdateMode string `json:"updateMode"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		mode, err := landmark.ParseUpdateMode(body.UpdateMode)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := tracker.SetUpdateMode(id, mode); err != nil {
			writeSessionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"updateMode": mode.String()})

	case (op == "residuals.png" || op == "residuals.svg") && r.Method == http.MethodGet:
		handleResiduals(w, tracker, id, strings.HasSuffix(op, ".svg"))

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// handleSetPoints replaces one landmark list from the request body
func handleSetPoints(w http.ResponseWriter, r *http.Request, tracker *landmark.SessionTracker, id, listName string) {
	list, err := landmark.ParsePointList(listName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	points, err := landmark.DecodePoints(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := tracker.SetPoints(id, list, points)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	if result == nil {
		// Manual mode deferred the recompute
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"accepted": true,
			"points":   len(points),
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleResiduals renders the session's residual plot
func handleResiduals(w http.ResponseWriter, tracker *landmark.SessionTracker, id string, asSVG bool) {
	result, err := tracker.Result(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	if result == nil || !result.Success {
		http.Error(w, "No successful calibration to plot", http.StatusServiceUnavailable)
		return
	}

	from, to, err := tracker.Points(id)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-cache")
	if asSVG {
		w.Header().Set("Content-Type", "image/svg+xml")
		r := landmark.NewVectorResidualRenderer(from, to, result.Transform)
		if err := r.RenderToSVG(w); err != nil {
			log.Printf("Error rendering residual SVG for %s: %v", id, err)
		}
		return
	}

	w.Header().Set("Content-Type", "image/png")
	r := landmark.NewResidualRenderer(from, to, result.Transform, result.RMSError)
	if err := r.RenderPNG(w); err != nil {
		log.Printf("Error rendering residual PNG for %s: %v", id, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// writeSessionError maps tracker errors onto HTTP status codes
func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, landmark.ErrUnknownSession) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
