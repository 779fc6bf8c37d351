package service

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

// Lookup is the outcome of ModelCache.Get. Found is false when no weight
// file could be located; FileID then is empty.
type Lookup struct {
	Found  bool
	FileID string
	Model  inference.Model
}

// ModelCache keeps one loaded model per weight file for the life of the
// process. Loads for the same file are collapsed into one.
type ModelCache struct {
	fs          afero.Fs
	dir         string
	runtime     inference.Runtime
	defaultFile string
	metrics     *Metrics

	group  singleflight.Group
	mu     sync.RWMutex
	models map[string]inference.Model
}

func NewModelCache(fs afero.Fs, dir string, rt inference.Runtime, defaultFile string, metrics *Metrics) *ModelCache {
	return &ModelCache{
		fs:          fs,
		dir:         dir,
		runtime:     rt,
		defaultFile: defaultFile,
		metrics:     metrics,
		models:      make(map[string]inference.Model),
	}
}

// Get returns the model for fileID, loading it on first use. When the
// weight file is missing it falls back to the default file. A load error
// is returned as *RuntimeError and leaves nothing cached for that file.
func (c *ModelCache) Get(fileID string) (Lookup, error) {
	if m, ok := c.cached(fileID); ok {
		return Lookup{Found: true, FileID: fileID, Model: m}, nil
	}
	if c.Present(fileID) {
		return c.load(fileID)
	}

	if fileID == c.defaultFile {
		return Lookup{}, nil
	}
	utils.Logger.Warn("weight file missing, using default",
		zap.String("file", fileID),
		zap.String("default", c.defaultFile))

	if m, ok := c.cached(c.defaultFile); ok {
		return Lookup{Found: true, FileID: c.defaultFile, Model: m}, nil
	}
	if c.Present(c.defaultFile) {
		return c.load(c.defaultFile)
	}
	return Lookup{}, nil
}

// Present reports whether the weight file exists on disk.
func (c *ModelCache) Present(fileID string) bool {
	ok, err := afero.Exists(c.fs, c.path(fileID))
	return err == nil && ok
}

// Loaded reports whether fileID already has a model in memory.
func (c *ModelCache) Loaded(fileID string) bool {
	_, ok := c.cached(fileID)
	return ok
}

func (c *ModelCache) cached(fileID string) (inference.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[fileID]
	return m, ok
}

func (c *ModelCache) path(fileID string) string {
	return filepath.Join(c.dir, fileID)
}

func (c *ModelCache) load(fileID string) (Lookup, error) {
	v, err, _ := c.group.Do(fileID, func() (interface{}, error) {
		// a load that finished between the caller's check and Do
		if m, ok := c.cached(fileID); ok {
			return m, nil
		}

		start := time.Now()
		utils.Logger.Info("loading model", zap.String("file", fileID))
		m, err := c.runtime.Load(c.path(fileID))
		c.metrics.modelLoaded(fileID, err)
		if err != nil {
			utils.Logger.Error("failed to load model", zap.String("file", fileID), zap.Error(err))
			return nil, err
		}
		utils.Logger.Info("model loaded",
			zap.String("file", fileID),
			zap.Duration("duration", time.Since(start)))

		c.mu.Lock()
		c.models[fileID] = m
		c.mu.Unlock()
		return m, nil
	})
	if err != nil {
		return Lookup{}, &RuntimeError{FileID: fileID, Cause: err}
	}
	return Lookup{Found: true, FileID: fileID, Model: v.(inference.Model)}, nil
}

// Close releases every loaded model.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for fileID, m := range c.models {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.models, fileID)
	}
	return firstErr
}
