package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

// AssetsHandler handles asset upload and management API endpoints. The
// owner identity is taken as-is from the request: authentication is the
// surrounding deployment's concern.
type AssetsHandler struct {
	service mediaingest.Service
	logger  *slog.Logger
}

// NewAssetsHandler creates a new assets handler
func NewAssetsHandler(service mediaingest.Service, logger *slog.Logger) *AssetsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetsHandler{service: service, logger: logger}
}

// Routes returns the router for asset endpoints
func (h *AssetsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Upload)
	r.Post("/delete", h.Delete)
	r.Get("/", h.List)
	r.Get("/{asset_id}", h.Get)
	r.Get("/{asset_id}/download", h.Download)
	return r
}

// UploadResponse is returned for both new and duplicate uploads.
type UploadResponse struct {
	AssetID     string `json:"asset_id"`
	IsDuplicate bool   `json:"is_duplicate"`
	Digest      string `json:"digest"`
	CreatedAt   time.Time `json:"created_at"`
}

// Upload handles POST / with a multipart form: an "owner_id" field, a
// "file" part, and optional "device_id" and "captured_at" (RFC 3339).
func (h *AssetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.FormValue("owner_id"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid owner_id")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	req := mediaingest.UploadRequest{
		OwnerID:  ownerID,
		Reader:   file,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		DeviceID: r.FormValue("device_id"),
	}
	if raw := r.FormValue("captured_at"); raw != "" {
		capturedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.renderError(w, r, http.StatusBadRequest, "invalid captured_at")
			return
		}
		req.CapturedAt = &capturedAt
	}

	result, err := h.service.Upload(r.Context(), req)
	if err != nil {
		h.renderServiceError(w, r, "upload", err)
		return
	}

	status := http.StatusCreated
	if result.IsDuplicate {
		status = http.StatusOK
	}
	render.Status(r, status)
	render.JSON(w, r, UploadResponse{
		AssetID:     result.Asset.ID.String(),
		IsDuplicate: result.IsDuplicate,
		Digest:      result.Asset.Digest,
		CreatedAt:   result.Asset.CreatedAt,
	})
}

// DeleteAssetsRequest asks for a set of assets to be deleted.
type DeleteAssetsRequest struct {
	OwnerID  string   `json:"owner_id"`
	AssetIDs []string `json:"asset_ids"`
}

// Delete handles POST /delete. The response carries a per-ID status; files
// are removed asynchronously after the call returns.
func (h *AssetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var body DeleteAssetsRequest
	if err := render.DecodeJSON(r.Body, &body); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	ownerID, err := uuid.Parse(body.OwnerID)
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid owner_id")
		return
	}

	req := mediaingest.DeleteRequest{OwnerID: ownerID}
	for _, raw := range body.AssetIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.renderError(w, r, http.StatusBadRequest, "invalid asset id: "+raw)
			return
		}
		req.AssetIDs = append(req.AssetIDs, id)
	}

	results, err := h.service.Delete(r.Context(), req)
	if err != nil {
		h.renderServiceError(w, r, "delete", err)
		return
	}

	render.JSON(w, r, map[string]interface{}{"results": results})
}

// Get handles GET /{asset_id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "asset_id"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid asset id")
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, r, "get", err)
		return
	}
	render.JSON(w, r, asset)
}

// List handles GET /?owner_id=...
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID, err := uuid.Parse(r.URL.Query().Get("owner_id"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid owner_id")
		return
	}

	assets, err := h.service.ListAssets(r.Context(), ownerID)
	if err != nil {
		h.renderServiceError(w, r, "list", err)
		return
	}
	render.JSON(w, r, map[string]interface{}{"assets": assets})
}

// Download handles GET /{asset_id}/download, streaming the stored bytes.
func (h *AssetsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "asset_id"))
	if err != nil {
		h.renderError(w, r, http.StatusBadRequest, "invalid asset id")
		return
	}

	rc, asset, err := h.service.Download(r.Context(), id)
	if err != nil {
		h.renderServiceError(w, r, "download", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", asset.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+asset.FileName+`"`)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("download interrupted", "asset_id", id, "error", err)
	}
}

func (h *AssetsHandler) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

func (h *AssetsHandler) renderServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, mediaingest.ErrValidation):
		h.renderError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, mediaingest.ErrAssetNotFound), errors.Is(err, mediaingest.ErrAssetDeleted):
		h.renderError(w, r, http.StatusNotFound, "asset not found")
	default:
		h.logger.Error("request failed", "op", op, "error", err)
		h.renderError(w, r, http.StatusInternalServerError, "internal error")
	}
}
