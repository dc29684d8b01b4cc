package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/http/response"
	"github.com/yungbote/imagerag/internal/modules/assets"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

const (
	// maxUploadMemory is how much of a form is buffered in memory; larger parts spill to disk.
	maxUploadMemory = 32 << 20
	defaultMaxFile  = 32 << 20
	defaultMaxBody  = 256 << 20
	defaultSearchK  = 3
	defaultListSize = 100
)

// AssetService is what the asset endpoints need from the assets module.
type AssetService interface {
	IngestBatch(ctx context.Context, items []assets.IngestInput) assets.BatchReport
	RetrieveWhere(ctx context.Context, query string, topK int, filter assets.Filter) (assets.RetrieveOutput, error)
	Ask(ctx context.Context, in assets.AskInput) (assets.AskOutput, error)
	ListAssets(ctx context.Context, in assets.ListInput) ([]*types.Asset, error)
	GetAsset(ctx context.Context, id string) (types.QueryMatch, bool, error)
	IndexStats(ctx context.Context) (types.IndexStats, error)
}

type AssetHandlerDeps struct {
	Log     *logger.Logger
	Service AssetService

	// MaxFileBytes rejects any single uploaded file above it. Zero means 32 MiB.
	MaxFileBytes int64
	// MaxBodyBytes caps the whole upload request. Zero means 256 MiB.
	MaxBodyBytes int64
}

type AssetHandler struct {
	log     *logger.Logger
	svc     AssetService
	maxFile int64
	maxBody int64
}

func NewAssetHandlerWithDeps(deps AssetHandlerDeps) *AssetHandler {
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	h := &AssetHandler{
		log:     log.With("handler", "AssetHandler"),
		svc:     deps.Service,
		maxFile: deps.MaxFileBytes,
		maxBody: deps.MaxBodyBytes,
	}
	if h.maxFile <= 0 {
		h.maxFile = defaultMaxFile
	}
	if h.maxBody <= 0 {
		h.maxBody = defaultMaxBody
	}
	return h
}

var errFileTooLarge = errors.New("file too large")

// Upload ingests every file in the multipart "files" field and returns the batch report.
func (h *AssetHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			response.RespondError(c, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Errorf("upload exceeds %d bytes", h.maxBody))
			return
		}
		response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
		return
	}
	var files []*multipart.FileHeader
	if form := c.Request.MultipartForm; form != nil {
		files = form.File["files"]
	}
	if len(files) == 0 {
		response.RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("no files uploaded"))
		return
	}
	items := make([]assets.IngestInput, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh, h.maxFile)
		if errors.Is(err, errFileTooLarge) {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", err)
			return
		}
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_multipart_form", err)
			return
		}
		items = append(items, assets.IngestInput{
			FileName: fh.Filename,
			MimeType: declaredImageType(fh.Header.Get("Content-Type")),
			Data:     data,
		})
	}
	report := h.svc.IngestBatch(c.Request.Context(), items)
	h.log.Info("upload ingested",
		"files", len(items),
		"succeeded", len(report.Succeeded()),
		"failed", len(report.Failed()),
	)
	response.RespondOK(c, gin.H{
		"items":       report.Items,
		"succeeded":   report.Succeeded(),
		"failed":      report.Failed(),
		"started_at":  report.StartedAt,
		"finished_at": report.FinishedAt,
	})
}

func (h *AssetHandler) List(c *gin.Context) {
	limit := defaultListSize
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_argument", fmt.Errorf("limit must be an integer"))
			return
		}
		limit = n
	}
	rows, err := h.svc.ListAssets(c.Request.Context(), assets.ListInput{
		FileName: strings.TrimSpace(c.Query("file_name")),
		Limit:    limit,
	})
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"assets": rows})
}

func (h *AssetHandler) Get(c *gin.Context) {
	m, ok, err := h.svc.GetAsset(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	if !ok {
		response.RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("asset %q not found", c.Param("id")))
		return
	}
	response.RespondOK(c, gin.H{"asset": viewOf(m)})
}

// readPart rejects a part larger than max instead of truncating it.
func readPart(fh *multipart.FileHeader, max int64) ([]byte, error) {
	if fh.Size > max {
		return nil, fmt.Errorf("%w: %q is %d bytes, limit %d", errFileTooLarge, fh.Filename, fh.Size, max)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, max+1))
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", fh.Filename, err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: %q exceeds %d bytes", errFileTooLarge, fh.Filename, max)
	}
	return data, nil
}

// declaredImageType drops generic part types so the pipeline sniffs the bytes instead.
func declaredImageType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(strings.SplitN(ct, ";", 2)[0]))
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}
