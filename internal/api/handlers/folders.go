package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/folders"
	"gorm.io/gorm"
)

type FolderHandler struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewFolderHandler(db *gorm.DB, logger *slog.Logger) *FolderHandler {
	return &FolderHandler{db: db, logger: logger}
}

func (h *FolderHandler) repo(r *http.Request) *folders.Repository {
	return folders.NewRepository(h.db, middleware.GetOrganizationID(r.Context()), h.logger)
}

// List handles GET /api/v1/folders
func (h *FolderHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := dto.PaginationFromRequest(r)

	var parentID *string
	if p := r.URL.Query().Get("parent_id"); p != "" {
		parentID = &p
	}

	repo := h.repo(r)
	total, err := repo.Count(r.Context(), parentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	list, err := repo.List(r.Context(), parentID, pagination.Offset(), pagination.PerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(dto.NewFolderResponses(list), total, pagination))
}

// Create handles POST /api/v1/folders
func (h *FolderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateFolderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	f, err := h.repo(r).Create(r.Context(), req.Name, req.ParentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewFolderResponse(f))
}

// Get handles GET /api/v1/folders/{id}
func (h *FolderHandler) Get(w http.ResponseWriter, r *http.Request) {
	f, err := h.repo(r).Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewFolderResponse(f))
}

// Update handles PUT /api/v1/folders/{id}
func (h *FolderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req folders.FolderEdit
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	f, err := h.repo(r).Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewFolderResponse(f))
}

// Delete handles DELETE /api/v1/folders/{id}
func (h *FolderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.repo(r).Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Path handles GET /api/v1/folders/{id}/path
func (h *FolderHandler) Path(w http.ResponseWriter, r *http.Request) {
	path, err := h.repo(r).Path(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewFolderResponses(path))
}
