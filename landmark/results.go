package landmark

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultResultsCachePath is the default path for the calibration results cache
const DefaultResultsCachePath = ".calibration-results.json"

// SavedResult is the persisted outcome of a session's last recompute.
// Only linear transforms are stored as matrices; a warping transform is
// fully determined by the session's landmark lists and is recomputed
// rather than serialized.
type SavedResult struct {
	Matrix        *Matrix4 `json:"matrix,omitempty"`
	RMSError      float64  `json:"rmsError"`
	StatusMessage string   `json:"statusMessage"`
	Success       bool     `json:"success"`
	LastUpdated   int64    `json:"lastUpdated"`
}

// ResultCache stores the last result for every session
type ResultCache struct {
	Sessions    map[string]SavedResult `json:"sessions"`
	LastUpdated int64                  `json:"lastUpdated"`
}

// NewResultCache returns an empty cache
func NewResultCache() *ResultCache {
	return &ResultCache{Sessions: make(map[string]SavedResult)}
}

// LoadResults loads the results cache from a JSON file. A missing file is
// not an error; it returns nil.
func LoadResults(path string) (*ResultCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading results cache: %w", err)
	}

	var cache ResultCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("parsing results cache: %w", err)
	}
	if cache.Sessions == nil {
		cache.Sessions = make(map[string]SavedResult)
	}
	return &cache, nil
}

// SaveResults saves the results cache to a JSON file
func SaveResults(path string, cache *ResultCache) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating results cache directory: %w", err)
	}

	cache.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results cache: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing results cache: %w", err)
	}

	return nil
}

// Update records a session's result, superseding any previous entry
func (c *ResultCache) Update(id string, result CalibrationResult) {
	if c.Sessions == nil {
		c.Sessions = make(map[string]SavedResult)
	}

	saved := SavedResult{
		RMSError:      result.RMSError,
		StatusMessage: result.StatusMessage,
		Success:       result.Success,
		LastUpdated:   time.Now().Unix(),
	}
	if lt, ok := result.Transform.(LinearTransform); ok {
		m := lt.Matrix
		saved.Matrix = &m
	}
	c.Sessions[id] = saved
}

// Get returns the saved result for a session
func (c *ResultCache) Get(id string) (SavedResult, bool) {
	if c == nil || c.Sessions == nil {
		return SavedResult{}, false
	}
	r, ok := c.Sessions[id]
	return r, ok
}
