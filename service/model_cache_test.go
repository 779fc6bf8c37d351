package service

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.viam.com/test"

	"github.com/usmansafdarmirza/OncoDetectAI/inference"
	"github.com/usmansafdarmirza/OncoDetectAI/testutils/inject"
)

const weightsDir = "/weights"

// statCountingFs counts filesystem probes.
type statCountingFs struct {
	afero.Fs
	stats atomic.Int64
}

func (f *statCountingFs) Stat(name string) (os.FileInfo, error) {
	f.stats.Add(1)
	return f.Fs.Stat(name)
}

func newWeightsFs(t *testing.T, files ...string) *statCountingFs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		test.That(t, afero.WriteFile(fs, filepath.Join(weightsDir, f), []byte("weights"), 0o644), test.ShouldBeNil)
	}
	return &statCountingFs{Fs: fs}
}

func TestModelCacheHit(t *testing.T) {
	fs := newWeightsFs(t, "best.onnx", "last.onnx")
	rt := &inject.Runtime{}
	cache := NewModelCache(fs, weightsDir, rt, DefaultFile, nil)

	first, err := cache.Get("last.onnx")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, first.Found, test.ShouldBeTrue)
	test.That(t, first.FileID, test.ShouldEqual, "last.onnx")
	test.That(t, first.Model.(*inject.Model).Path, test.ShouldEqual, filepath.Join(weightsDir, "last.onnx"))

	stats := fs.stats.Load()
	second, err := cache.Get("last.onnx")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Model, test.ShouldEqual, first.Model)
	test.That(t, rt.Loads(), test.ShouldEqual, int64(1))
	test.That(t, fs.stats.Load(), test.ShouldEqual, stats)
	test.That(t, cache.Loaded("last.onnx"), test.ShouldBeTrue)
	test.That(t, cache.Loaded("best.onnx"), test.ShouldBeFalse)
}

func TestModelCacheFallback(t *testing.T) {
	fs := newWeightsFs(t, "best.onnx")
	rt := &inject.Runtime{}
	cache := NewModelCache(fs, weightsDir, rt, DefaultFile, nil)

	got, err := cache.Get("yolo11n-seg.onnx")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got.Found, test.ShouldBeTrue)
	test.That(t, got.FileID, test.ShouldEqual, DefaultFile)

	// the default slot is shared with direct requests for it
	direct, err := cache.Get(DefaultFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, direct.Model, test.ShouldEqual, got.Model)

	again, err := cache.Get("yolo11n-seg.onnx")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Model, test.ShouldEqual, got.Model)
	test.That(t, rt.Loads(), test.ShouldEqual, int64(1))
	test.That(t, cache.Loaded("yolo11n-seg.onnx"), test.ShouldBeFalse)
}

func TestModelCacheAbsent(t *testing.T) {
	rt := &inject.Runtime{}
	cache := NewModelCache(newWeightsFs(t), weightsDir, rt, DefaultFile, nil)

	for _, file := range []string{"last.onnx", DefaultFile} {
		got, err := cache.Get(file)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got.Found, test.ShouldBeFalse)
		test.That(t, got.Model, test.ShouldBeNil)
	}
	test.That(t, rt.Loads(), test.ShouldEqual, int64(0))
}

func TestModelCacheCorruptWeightsIsolated(t *testing.T) {
	fs := newWeightsFs(t, "best.onnx", "last.onnx")
	rt := &inject.Runtime{LoadFunc: func(path string) (inference.Model, error) {
		if filepath.Base(path) == "last.onnx" {
			return nil, errors.New("protobuf parsing failed")
		}
		return &inject.Model{Path: path}, nil
	}}
	cache := NewModelCache(fs, weightsDir, rt, DefaultFile, nil)

	good, err := cache.Get(DefaultFile)
	test.That(t, err, test.ShouldBeNil)

	_, err = cache.Get("last.onnx")
	test.That(t, err, test.ShouldNotBeNil)
	var rerr *RuntimeError
	test.That(t, errors.As(err, &rerr), test.ShouldBeTrue)
	test.That(t, rerr.FileID, test.ShouldEqual, "last.onnx")
	test.That(t, err.Error(), test.ShouldContainSubstring, "protobuf parsing failed")
	test.That(t, cache.Loaded("last.onnx"), test.ShouldBeFalse)

	still, err := cache.Get(DefaultFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, still.Model, test.ShouldEqual, good.Model)

	// failures are not cached, the next request tries again
	_, err = cache.Get("last.onnx")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, rt.Loads(), test.ShouldEqual, int64(3))
}

func TestModelCacheConcurrentFirstAccess(t *testing.T) {
	fs := newWeightsFs(t, "best.onnx", "last.onnx")
	release := make(chan struct{})
	rt := &inject.Runtime{LoadFunc: func(path string) (inference.Model, error) {
		<-release
		return &inject.Model{Path: path}, nil
	}}
	cache := NewModelCache(fs, weightsDir, rt, DefaultFile, nil)

	const callers = 16
	results := make([]Lookup, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := cache.Get("last.onnx")
			test.That(t, err, test.ShouldBeNil)
			results[i] = got
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	test.That(t, rt.Loads(), test.ShouldEqual, int64(1))
	for _, got := range results {
		test.That(t, got.Model, test.ShouldEqual, results[0].Model)
	}
}

func TestModelCacheClose(t *testing.T) {
	fs := newWeightsFs(t, "best.onnx")
	var closed atomic.Int64
	rt := &inject.Runtime{LoadFunc: func(path string) (inference.Model, error) {
		return &inject.Model{CloseFunc: func() error {
			closed.Add(1)
			return nil
		}}, nil
	}}
	cache := NewModelCache(fs, weightsDir, rt, DefaultFile, nil)
	_, err := cache.Get(DefaultFile)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, cache.Close(), test.ShouldBeNil)
	test.That(t, closed.Load(), test.ShouldEqual, int64(1))
	test.That(t, cache.Loaded(DefaultFile), test.ShouldBeFalse)
}
