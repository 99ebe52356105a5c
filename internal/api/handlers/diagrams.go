package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/diagrams"
)

type DiagramHandler struct {
	factory *diagrams.Factory
	logger  *slog.Logger
}

func NewDiagramHandler(factory *diagrams.Factory, logger *slog.Logger) *DiagramHandler {
	return &DiagramHandler{factory: factory, logger: logger}
}

func (h *DiagramHandler) repo(r *http.Request) *diagrams.Repository {
	return h.factory.ForOrganization(middleware.GetOrganizationID(r.Context()))
}

// List handles GET /api/v1/diagrams
//
// folder_id=root limits the list to diagrams outside any folder; any other
// folder_id limits it to that folder.
func (h *DiagramHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := dto.PaginationFromRequest(r)

	var filter diagrams.ListFilter
	switch folderID := r.URL.Query().Get("folder_id"); folderID {
	case "":
	case "root":
		filter.Root = true
	default:
		filter.FolderID = &folderID
	}

	repo := h.repo(r)
	total, err := repo.Count(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	list, err := repo.List(r.Context(), filter, pagination.Offset(), pagination.PerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items := make([]dto.DiagramListItem, len(list))
	for i := range list {
		items[i] = dto.NewDiagramListItem(&list[i])
	}

	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(items, total, pagination))
}

// Create handles POST /api/v1/diagrams
func (h *DiagramHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateDiagramRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}

	repo := h.repo(r)
	id, err := repo.Create(r.Context(), req.FolderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	d, err := repo.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.NewDiagramResponse(d))
}

// Get handles GET /api/v1/diagrams/{id}
func (h *DiagramHandler) Get(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo(r).Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewDiagramResponse(d))
}

// Update handles PUT /api/v1/diagrams/{id}
func (h *DiagramHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req diagrams.DiagramEdit
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	d, err := h.repo(r).Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewDiagramResponse(d))
}

// Delete handles DELETE /api/v1/diagrams/{id}
func (h *DiagramHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo(r).Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Image handles GET /diagrams/{id}/image.png and the legacy image.svg path.
// Both serve the PNG. Anonymous callers can only fetch public diagrams.
func (h *DiagramHandler) Image(w http.ResponseWriter, r *http.Request) {
	render, err := h.repo(r).GetImageRender(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	etag := `"` + strconv.FormatInt(render.Version, 10) + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(render.Image)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(render.Image)
}
