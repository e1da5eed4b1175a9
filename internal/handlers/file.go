package handlers

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/internal/workflow"
	"github.com/gigflow/backend/pkg/response"
	"github.com/gin-gonic/gin"
)

type FileHandler struct {
	engine *workflow.Engine
}

func NewFileHandler(engine *workflow.Engine) *FileHandler {
	return &FileHandler{engine: engine}
}

// formUpload opens the multipart "file" field. The caller must call the
// returned close function.
func formUpload(c *gin.Context) (workflow.FileUpload, func(), bool) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return workflow.FileUpload{}, nil, false
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "failed to read uploaded file")
		return workflow.FileUpload{}, nil, false
	}
	upload := workflow.FileUpload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Content:     f,
	}
	return upload, func() { f.Close() }, true
}

// Upload stores a project file; an optional milestone_id form field attaches it
// POST /api/projects/:id/files
func (h *FileHandler) Upload(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var milestoneID *uint
	if raw := c.PostForm("milestone_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || v == 0 {
			response.BadRequest(c, "invalid milestone_id")
			return
		}
		id := uint(v)
		milestoneID = &id
	}

	upload, closeFn, ok := formUpload(c)
	if !ok {
		return
	}
	defer closeFn()

	file, err := h.engine.UploadFile(c.Request.Context(), middleware.GetActor(c), projectID, milestoneID, upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// GET /api/projects/:id/files
func (h *FileHandler) List(c *gin.Context) {
	projectID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req workflow.FileFilter
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.ListFiles(c.Request.Context(), middleware.GetActor(c), projectID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, resp)
}

// GET /api/files/:id
func (h *FileHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	file, err := h.engine.GetFile(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, file)
}

// Download streams the stored contents
// GET /api/files/:id/download
func (h *FileHandler) Download(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	file, rc, err := h.engine.OpenFile(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": file.FileName})
	c.DataFromReader(http.StatusOK, file.Size, file.ContentType, rc, map[string]string{
		"Content-Disposition": disposition,
	})
}

// DELETE /api/files/:id
func (h *FileHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.DeleteFile(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"message": "file deleted successfully"})
}
