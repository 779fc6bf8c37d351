package model

// Detection is one normalized region in an analyze response.
type Detection struct {
	BBox     []float64    `json:"bbox"` // x1, y1, x2, y2 in pixels
	Conf     float64      `json:"conf"` // percent
	Class    int          `json:"class"`
	Name     string       `json:"name"`
	Segments [][2]float64 `json:"segments"` // percent of width / height
}

// AnalyzeResponse is the success envelope of POST /analyze.
type AnalyzeResponse struct {
	Status         string      `json:"status"`
	Detections     []Detection `json:"detections"`
	InferenceSpeed float64     `json:"inference_speed"`
	ModelUsed      string      `json:"model_used"`
}

// ErrorResponse is the general failure envelope.
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MissingInputResponse is returned when no image was uploaded. Its shape
// differs from ErrorResponse because the front-end reads both as-is.
type MissingInputResponse struct {
	Error string `json:"error"`
}

// ModelInfo describes one alias for GET /models.
type ModelInfo struct {
	Alias   string `json:"alias"`
	File    string `json:"file"`
	Default bool   `json:"default"`
	Present bool   `json:"present"`
	Loaded  bool   `json:"loaded"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)
