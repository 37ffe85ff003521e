package landmark

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadResultsMissingFile(t *testing.T) {
	cache, err := LoadResults(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if cache != nil {
		t.Errorf("missing cache file should load as nil, got %+v", cache)
	}
}

func TestLoadResultsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadResults(path); err == nil {
		t.Error("expected parse error, got nil")
	}
}

func TestResultCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "results.json")

	m := Identity4()
	m[0][3] = 5

	cache := NewResultCache()
	cache.Update("probe", CalibrationResult{
		Transform:     LinearTransform{Matrix: m},
		RMSError:      0.25,
		StatusMessage: "Success! RMS Error: 0.25",
		Success:       true,
	})

	if err := SaveResults(path, cache); err != nil {
		t.Fatalf("SaveResults: %v", err)
	}

	loaded, err := LoadResults(path)
	if err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	if loaded == nil {
		t.Fatal("LoadResults returned nil for existing file")
	}

	saved, ok := loaded.Get("probe")
	if !ok {
		t.Fatal("saved session missing from loaded cache")
	}
	if !saved.Success || saved.RMSError != 0.25 {
		t.Errorf("saved result = %+v", saved)
	}
	if saved.Matrix == nil || (*saved.Matrix)[0][3] != 5 {
		t.Errorf("saved matrix = %v, want translation 5", saved.Matrix)
	}
	if loaded.LastUpdated == 0 {
		t.Error("LastUpdated not stamped on save")
	}
}

// Warping results persist status and error only; the transform itself is
// recomputed from the landmark lists.
func TestResultCacheWarpingHasNoMatrix(t *testing.T) {
	from := testTetrahedron()
	w, err := NewWarpingTransform(from, from)
	if err != nil {
		t.Fatalf("NewWarpingTransform: %v", err)
	}

	cache := NewResultCache()
	cache.Update("warp", CalibrationResult{Transform: w, Success: true})

	saved, ok := cache.Get("warp")
	if !ok {
		t.Fatal("warp session missing")
	}
	if saved.Matrix != nil {
		t.Error("warping result must not persist a matrix")
	}
}

func TestResultCacheUpdateSupersedes(t *testing.T) {
	cache := NewResultCache()
	cache.Update("probe", CalibrationResult{StatusMessage: "first", Success: true})
	cache.Update("probe", CalibrationResult{StatusMessage: "second", Success: false})

	saved, _ := cache.Get("probe")
	if saved.StatusMessage != "second" || saved.Success {
		t.Errorf("saved = %+v, want superseding second result", saved)
	}
}

func TestResultCacheGetNil(t *testing.T) {
	var cache *ResultCache
	if _, ok := cache.Get("anything"); ok {
		t.Error("nil cache must report no results")
	}
}
