package service

import "sort"

const (
	PrimaryAlias = "YOLOv11-Prostate-Seg"
	DefaultFile  = "best.onnx"
)

var modelFiles = map[string]string{
	PrimaryAlias:         DefaultFile,
	"Recall-Boost-Final": "last.onnx",
	"Standard-YOLO-v11":  "yolo11n-seg.onnx",
}

// Registry maps the model names clients choose from to weight files.
type Registry struct {
	defaultAlias string
}

// NewRegistry returns a registry whose form default is defaultAlias, or
// the primary alias when defaultAlias is not a known name.
func NewRegistry(defaultAlias string) *Registry {
	if _, ok := modelFiles[defaultAlias]; !ok {
		defaultAlias = PrimaryAlias
	}
	return &Registry{defaultAlias: defaultAlias}
}

// Resolve returns the weight file for alias. Unknown aliases get the
// default file.
func (r *Registry) Resolve(alias string) string {
	if file, ok := modelFiles[alias]; ok {
		return file
	}
	return DefaultFile
}

func (r *Registry) DefaultAlias() string {
	return r.defaultAlias
}

func (r *Registry) DefaultFile() string {
	return DefaultFile
}

// Aliases lists the known aliases in name order.
func (r *Registry) Aliases() []string {
	aliases := make([]string, 0, len(modelFiles))
	for alias := range modelFiles {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}
