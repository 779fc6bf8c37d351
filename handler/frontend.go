package handler

import (
	"net/http"
	"path"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/usmansafdarmirza/OncoDetectAI/utils"
)

// FrontendHandler serves the single-page front-end from one directory.
// Paths cannot escape that directory.
type FrontendHandler struct {
	dir   string
	files afero.Fs
}

func NewFrontendHandler(fs afero.Fs, dir string) *FrontendHandler {
	return &FrontendHandler{
		dir:   dir,
		files: afero.NewBasePathFs(fs, dir),
	}
}

// Index serves index.html, or a plain-text 404 naming the path it tried.
func (h *FrontendHandler) Index(c *gin.Context) {
	if ok, _ := afero.Exists(h.files, "index.html"); !ok {
		indexPath := filepath.Join(h.dir, "index.html")
		utils.Logger.Error("front-end index missing", zap.String("path", indexPath))
		c.String(http.StatusNotFound, "CRITICAL ERROR: index.html not found at: %s", indexPath)
		return
	}
	h.serve(c, "index.html")
}

// Asset serves /assets/*filepath from the assets subdirectory.
func (h *FrontendHandler) Asset(c *gin.Context) {
	h.serve(c, path.Join("assets", c.Param("filepath")))
}

// File serves any other GET path from the front-end root; other methods
// get a bare 404.
func (h *FrontendHandler) File(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusNotFound)
		return
	}
	h.serve(c, c.Request.URL.Path)
}

func (h *FrontendHandler) serve(c *gin.Context, name string) {
	name = path.Clean("/" + name)

	f, err := h.files.Open(name)
	if err != nil {
		c.Status(http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		c.Status(http.StatusNotFound)
		return
	}
	http.ServeContent(c.Writer, c.Request, info.Name(), info.ModTime(), f)
}
