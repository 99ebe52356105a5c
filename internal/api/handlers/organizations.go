package handlers

import (
	"log/slog"
	"net/http"

	"github.com/hugh/easy-diagrams/internal/api/dto"
	"github.com/hugh/easy-diagrams/internal/api/middleware"
	"github.com/hugh/easy-diagrams/internal/auth"
	"github.com/hugh/easy-diagrams/internal/diagrams"
	"github.com/hugh/easy-diagrams/internal/organizations"
	"gorm.io/gorm"
)

type OrganizationHandler struct {
	db          *gorm.DB
	authService auth.Authenticator
	images      organizations.ImageMirror
	cookies     SessionCookies
	logger      *slog.Logger
}

// NewOrganizationHandler builds the handler. images may be nil when diagrams
// are not mirrored.
func NewOrganizationHandler(db *gorm.DB, authService auth.Authenticator, images *diagrams.RenderService, cookies SessionCookies, logger *slog.Logger) *OrganizationHandler {
	h := &OrganizationHandler{db: db, authService: authService, cookies: cookies, logger: logger}
	if images != nil {
		h.images = images
	}
	return h
}

func (h *OrganizationHandler) repo(r *http.Request) *organizations.Repository {
	return organizations.NewRepository(h.db, middleware.GetUserID(r.Context()), h.logger)
}

// List handles GET /api/v1/organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	pagination := dto.PaginationFromRequest(r)
	current := middleware.GetOrganizationID(r.Context())

	repo := h.repo(r)
	total, err := repo.Count(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := repo.List(r.Context(), pagination.Offset(), pagination.PerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	items := make([]dto.OrganizationResponse, len(list))
	for i := range list {
		items[i] = dto.NewOrganizationResponse(&list[i], list[i].ID == current)
	}
	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(items, total, pagination))
}

// Create handles POST /api/v1/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	org, err := h.repo(r).Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.NewOrganizationResponse(org, false))
}

// Get handles GET /api/v1/organizations/{id}
func (h *OrganizationHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	org, err := h.repo(r).Get(r.Context(), orgID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewOrganizationResponse(org, org.ID == middleware.GetOrganizationID(r.Context())))
}

// Update handles PUT /api/v1/organizations/{id}
func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req organizations.OrganizationEdit
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	org, err := h.repo(r).Edit(r.Context(), orgID, req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewOrganizationResponse(org, org.ID == middleware.GetOrganizationID(r.Context())))
}

// Delete handles DELETE /api/v1/organizations/{id}
func (h *OrganizationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	repo := h.repo(r)
	if h.images != nil {
		repo = repo.WithImageMirror(h.images)
	}
	if err := repo.Delete(r.Context(), orgID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Switch handles POST /api/v1/organizations/{id}/switch
func (h *OrganizationHandler) Switch(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp, err := h.authService.SwitchOrganization(r.Context(), middleware.GetUserID(r.Context()), orgID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.Set(w, resp.Token)
	writeJSON(w, http.StatusOK, dto.AuthResponse{
		Token:          resp.Token,
		User:           dto.NewUserDTO(resp.User),
		OrganizationID: resp.OrganizationID.String(),
	})
}

// ListUsers handles GET /api/v1/organizations/{id}/users
func (h *OrganizationHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pagination := dto.PaginationFromRequest(r)

	repo := h.repo(r)
	total, err := repo.CountUsers(r.Context(), orgID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	members, err := repo.ListUsers(r.Context(), orgID, pagination.Offset(), pagination.PerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.NewPaginatedResponse(members, total, pagination))
}

// AddUser handles POST /api/v1/organizations/{id}/users
func (h *OrganizationHandler) AddUser(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req dto.AddMemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	member, err := h.repo(r).AddUser(r.Context(), orgID, req.Email, req.IsOwner)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

// RemoveUser handles DELETE /api/v1/organizations/{id}/users/{userID}
func (h *OrganizationHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID, err := uuidParam(r, "userID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.repo(r).RemoveUser(r.Context(), orgID, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListOwners handles GET /api/v1/organizations/{id}/owners
func (h *OrganizationHandler) ListOwners(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pagination := dto.PaginationFromRequest(r)

	ids, err := h.repo(r).GetOwners(r.Context(), orgID, pagination.Offset(), pagination.PerPage)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	resp := dto.OwnersResponse{UserIDs: make([]string, len(ids))}
	for i, id := range ids {
		resp.UserIDs[i] = id.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// MakeOwner handles PUT /api/v1/organizations/{id}/owners/{userID}
func (h *OrganizationHandler) MakeOwner(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID, err := uuidParam(r, "userID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.repo(r).MakeOwner(r.Context(), orgID, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveOwner handles DELETE /api/v1/organizations/{id}/owners/{userID}
func (h *OrganizationHandler) RemoveOwner(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	userID, err := uuidParam(r, "userID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.repo(r).RemoveOwner(r.Context(), orgID, userID); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
