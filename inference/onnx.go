package inference

import (
	"context"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/usmansafdarmirza/OncoDetectAI/config"
	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

const defaultInputSize = 640

// ONNXRuntime loads YOLO segmentation exports through onnxruntime.
type ONNXRuntime struct {
	intraOpThreads int
}

// NewONNXRuntime initializes the shared onnxruntime environment.
func NewONNXRuntime(cfg config.InferenceConfig) (*ONNXRuntime, error) {
	if cfg.SharedLibrary != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "failed to initialize ONNX environment")
		}
	}
	return &ONNXRuntime{intraOpThreads: cfg.IntraOpThreads}, nil
}

func (r *ONNXRuntime) Close() error {
	return ort.DestroyEnvironment()
}

// Load validates the model graph and reads its class table. Sessions are
// created on first use per device.
func (r *ONNXRuntime) Load(path string) (Model, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read model %s", path)
	}
	if len(inputs) != 1 || len(outputs) != 2 {
		return nil, errors.Errorf("model %s has %d inputs and %d outputs, want 1 and 2 (segmentation export)",
			path, len(inputs), len(outputs))
	}
	for _, info := range append(append([]ort.InputOutputInfo{}, inputs...), outputs...) {
		if info.DataType != ort.TensorElementDataTypeFloat {
			return nil, errors.Errorf("model %s tensor %q is %v, want float32", path, info.Name, info.DataType)
		}
	}

	in := inputs[0].Dimensions
	if len(in) != 4 {
		return nil, errors.Errorf("model %s input shape %v, want NCHW", path, in)
	}
	inH, inW := dimOr(in[2], defaultInputSize), dimOr(in[3], defaultInputSize)

	head, protos := outputs[0], outputs[1]
	if len(head.Dimensions) != 3 || len(protos.Dimensions) != 4 {
		head, protos = protos, head
	}
	if len(head.Dimensions) != 3 || len(protos.Dimensions) != 4 {
		return nil, errors.Errorf("model %s output shapes %v and %v are not a segmentation head",
			path, outputs[0].Dimensions, outputs[1].Dimensions)
	}

	numMasks := int(dimOr(protos.Dimensions[1], 32))
	protoH := int(dimOr(protos.Dimensions[2], inH/4))
	protoW := int(dimOr(protos.Dimensions[3], inW/4))
	channels := int(head.Dimensions[1])
	if channels <= 4+numMasks {
		return nil, errors.Errorf("model %s head has %d channels, too few for %d mask coefficients",
			path, channels, numMasks)
	}
	anchors := int(dimOr(head.Dimensions[2], anchorCount(inW, inH)))

	names := map[int]string{}
	if meta, err := ort.GetModelMetadata(path); err == nil {
		if raw, ok, err := meta.LookupCustomMetadataMap("names"); err == nil && ok {
			names = parseNames(raw)
		}
		_ = meta.Destroy()
	}
	numClasses := channels - 4 - numMasks

	utils.Logger.Info("model graph inspected",
		zap.String("path", path),
		zap.Int64("input_w", inW),
		zap.Int64("input_h", inH),
		zap.Int("classes", numClasses),
		zap.Int("anchors", anchors))

	return &segModel{
		path:           path,
		intraOpThreads: r.intraOpThreads,
		inputName:      inputs[0].Name,
		headName:       head.Name,
		protoName:      protos.Name,
		inW:            int(inW),
		inH:            int(inH),
		layout:         headLayout{numClasses: numClasses, numMasks: numMasks, numAnchors: anchors},
		masks:          &maskProcessor{numMasks: numMasks, protoW: protoW, protoH: protoH},
		names:          fillNames(names, numClasses),
		sessions:       make(map[string]*session),
	}, nil
}

func dimOr(d, fallback int64) int64 {
	if d <= 0 {
		return fallback
	}
	return d
}

// anchorCount is the number of predictions of a stride 8/16/32 head.
func anchorCount(w, h int64) int64 {
	var n int64
	for _, s := range []int64{8, 16, 32} {
		n += (w / s) * (h / s)
	}
	return n
}

type session struct {
	mu     sync.Mutex
	run    *ort.AdvancedSession
	input  *ort.Tensor[float32]
	head   *ort.Tensor[float32]
	protos *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.run != nil {
		s.run.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.head != nil {
		s.head.Destroy()
	}
	if s.protos != nil {
		s.protos.Destroy()
	}
}

type segModel struct {
	path           string
	intraOpThreads int
	inputName      string
	headName       string
	protoName      string
	inW, inH       int
	layout         headLayout
	masks          *maskProcessor
	names          map[int]string

	mu       sync.Mutex
	sessions map[string]*session
}

func (m *segModel) Names() map[int]string {
	return m.names
}

func (m *segModel) session(dev Device) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := dev.String()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	s, err := m.newSession(dev)
	if err != nil {
		return nil, err
	}
	m.sessions[key] = s
	utils.Logger.Info("inference session created", zap.String("path", m.path), zap.String("device", key))
	return s, nil
}

func (m *segModel) newSession(dev Device) (*session, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "error creating session options")
	}
	defer options.Destroy()

	if m.intraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(m.intraOpThreads); err != nil {
			return nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}

	switch dev.provider {
	case providerCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, errors.Wrap(err, "CUDA is not available")
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(dev.id)}); err != nil {
			return nil, errors.Wrapf(err, "invalid CUDA device %d", dev.id)
		}
		if err := options.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, errors.Wrapf(err, "CUDA device %d is not available", dev.id)
		}
	case providerCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			return nil, errors.Wrap(err, "CoreML is not available")
		}
	}

	s := &session{}
	if s.input, err = ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(m.inH), int64(m.inW))); err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	l := m.layout
	if s.head, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+l.numClasses+l.numMasks), int64(l.numAnchors))); err != nil {
		s.destroy()
		return nil, errors.Wrap(err, "error creating detection tensor")
	}
	if s.protos, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(l.numMasks), int64(m.masks.protoH), int64(m.masks.protoW))); err != nil {
		s.destroy()
		return nil, errors.Wrap(err, "error creating prototype tensor")
	}

	s.run, err = ort.NewAdvancedSession(
		m.path,
		[]string{m.inputName},
		[]string{m.headName, m.protoName},
		[]ort.ArbitraryTensor{s.input},
		[]ort.ArbitraryTensor{s.head, s.protos},
		options,
	)
	if err != nil {
		s.destroy()
		return nil, errors.Wrap(err, "error creating session")
	}
	return s, nil
}

func (m *segModel) Predict(ctx context.Context, img gocv.Mat, device string, conf float32) (*Result, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	dev, err := ParseDevice(device)
	if err != nil {
		return nil, err
	}
	s, err := m.session(dev)
	if err != nil {
		return nil, err
	}

	preStart := time.Now()
	geom := newLetterboxGeometry(img.Cols(), img.Rows(), m.inW, m.inH)
	boxed, err := letterbox(img, geom)
	if err != nil {
		return nil, err
	}
	defer boxed.Close()

	blob := gocv.BlobFromImage(boxed, 1.0/255.0, image.Point{X: m.inW, Y: m.inH}, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	pixels, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read input blob")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.input.GetData(), pixels)
	preprocess := milliseconds(time.Since(preStart))

	inferStart := time.Now()
	if err := s.run.Run(); err != nil {
		return nil, errors.Wrap(err, "model inference")
	}
	infer := milliseconds(time.Since(inferStart))

	postStart := time.Now()
	res, err := m.postprocess(s.head.GetData(), s.protos.GetData(), geom, conf)
	if err != nil {
		return nil, err
	}
	res.Speed = Speed{
		Preprocess:  preprocess,
		Inference:   infer,
		Postprocess: milliseconds(time.Since(postStart)),
	}
	return res, nil
}

func (m *segModel) postprocess(head, protos []float32, geom letterboxGeometry, conf float32) (*Result, error) {
	cands, err := decodeHead(head, m.layout, conf)
	if err != nil {
		return nil, err
	}
	kept := nonMaxSuppression(cands, iouThreshold, maxDetection)

	res := &Result{Width: geom.srcW, Height: geom.srcH}
	if len(kept) == 0 {
		return res, nil
	}

	res.Boxes = make([]Box, 0, len(kept))
	res.Masks = &Masks{XY: make([][][2]float64, 0, len(kept))}
	for _, c := range kept {
		poly, err := m.masks.polygon(protos, c, geom)
		if err != nil {
			return nil, err
		}
		res.Boxes = append(res.Boxes, Box{XYXY: toFloat32Box(geom.scaleBox(c.box)), Conf: c.score, Class: c.class})
		res.Masks.XY = append(res.Masks.XY, poly)
	}
	return res, nil
}

func (m *segModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		s.mu.Lock()
		s.destroy()
		s.mu.Unlock()
		delete(m.sessions, key)
	}
	return nil
}

// toFloat32Box keeps the precision of the output tensors.
func toFloat32Box(b [4]float64) [4]float64 {
	for i := range b {
		b[i] = float64(float32(b[i]))
	}
	return b
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
