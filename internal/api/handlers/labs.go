// labs.go — обработчики /api/v1/labs и /api/v1/auto-fields.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/epfl-sti/epflws/internal/api/errors"
	"github.com/epfl-sti/epflws/internal/domain/model"
	"github.com/epfl-sti/epflws/internal/service"
)

// LabHandler — обработчик API лабораторий.
type LabHandler struct {
	labs   *service.LabService
	sync   *service.LabSyncService
	logger *slog.Logger
}

// NewLabHandler создаёт обработчик API лабораторий.
func NewLabHandler(labs *service.LabService, sync *service.LabSyncService, logger *slog.Logger) *LabHandler {
	return &LabHandler{
		labs:   labs,
		sync:   sync,
		logger: logger.With(slog.String("component", "lab_handler")),
	}
}

type unitResponse struct {
	Abbrev  string   `json:"abbrev"`
	DN      string   `json:"dn"`
	Parent  string   `json:"parent,omitempty"`
	Parents []string `json:"parents,omitempty"`
}

type labResponse struct {
	ID            string       `json:"id"`
	UniqueID      string       `json:"unique_id"`
	Name          string       `json:"name"`
	Abbrev        string       `json:"abbrev"`
	DescriptionFR string       `json:"description_fr"`
	DescriptionEN string       `json:"description_en"`
	WebsiteURL    string       `json:"website_url"`
	DN            string       `json:"dn"`
	ManagerSciper string       `json:"manager_sciper,omitempty"`
	PostalAddress string       `json:"postal_address,omitempty"`
	MemberCount   *int         `json:"member_count"`
	NotALab       bool         `json:"not_a_lab"`
	IsActive      bool         `json:"is_active"`
	IsReal        bool         `json:"is_real"`
	Unit          unitResponse `json:"unit"`
	UpdatedAt     string       `json:"updated_at"`
}

type labListResponse struct {
	DNSuffix string        `json:"dn_suffix"`
	Total    int           `json:"total"`
	Items    []labResponse `json:"items"`
}

type labSyncResponse struct {
	DNSuffix    string `json:"dn_suffix"`
	Total       int    `json:"total"`
	Synced      int    `json:"synced"`
	NotFound    int    `json:"not_found"`
	Unicity     int    `json:"unicity"`
	Failed      int    `json:"failed"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at"`
}

type notALabRequest struct {
	NotALab *bool `json:"not_a_lab"`
}

type autoFieldsResponse struct {
	PostType string   `json:"post_type"`
	Fields   []string `json:"fields"`
}

func toLabResponse(lab *service.Lab) labResponse {
	unit := lab.OrganizationalUnit()
	return labResponse{
		ID:            lab.ID,
		UniqueID:      lab.UniqueID,
		Name:          lab.Name,
		Abbrev:        lab.Abbrev,
		DescriptionFR: lab.DescriptionFR,
		DescriptionEN: lab.DescriptionEN,
		WebsiteURL:    lab.WebsiteURL,
		DN:            lab.DN,
		ManagerSciper: lab.ManagerSciper,
		PostalAddress: lab.PostalAddress,
		MemberCount:   lab.MemberCount(),
		NotALab:       lab.NotALab(),
		IsActive:      lab.IsActive(),
		IsReal:        lab.IsReal(),
		Unit: unitResponse{
			Abbrev:  unit.Abbrev,
			DN:      unit.DN,
			Parent:  unit.Parent(),
			Parents: unit.Parents,
		},
		UpdatedAt: lab.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// List — GET /api/v1/labs?dn_suffix=
func (h *LabHandler) List(w http.ResponseWriter, r *http.Request) {
	suffix := r.URL.Query().Get("dn_suffix")
	if suffix == "" {
		suffix = h.sync.DNSuffix()
	}

	labs, err := h.labs.FindAllByDNSuffix(r.Context(), suffix)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := labListResponse{DNSuffix: suffix, Total: len(labs), Items: make([]labResponse, 0, len(labs))}
	for _, lab := range labs {
		resp.Items = append(resp.Items, toLabResponse(lab))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get — GET /api/v1/labs/{id}
func (h *LabHandler) Get(w http.ResponseWriter, r *http.Request) {
	lab, err := h.labs.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// GetByUniqueID — GET /api/v1/labs/by-unique-id/{uniqueID}
func (h *LabHandler) GetByUniqueID(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uniqueID")
	lab, err := h.labs.GetByUniqueID(r.Context(), uid)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if lab == nil {
		apierrors.NotFound(w, "Лаборатория с uniqueIdentifier "+uid+" не найдена")
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// GetByAbbrev — GET /api/v1/labs/by-abbrev/{abbrev}.
// 404, если каталог не сопоставляет аббревиатуру ровно одному подразделению.
func (h *LabHandler) GetByAbbrev(w http.ResponseWriter, r *http.Request) {
	abbrev := chi.URLParam(r, "abbrev")
	lab, err := h.labs.GetByAbbrev(r.Context(), abbrev)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if lab == nil {
		apierrors.NotFound(w, "Лаборатория "+abbrev+" не найдена или аббревиатура неоднозначна")
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// Manager — GET /api/v1/labs/{id}/manager
func (h *LabHandler) Manager(w http.ResponseWriter, r *http.Request) {
	lab, err := h.labs.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	person, err := h.labs.Manager(r.Context(), lab)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if person == nil {
		apierrors.NotFound(w, "Руководитель лаборатории неизвестен")
		return
	}
	writeJSON(w, http.StatusOK, toPersonResponse(person))
}

// CreateByAbbrev — POST /api/v1/labs/by-abbrev/{abbrev}: get-or-create и синхронизация.
func (h *LabHandler) CreateByAbbrev(w http.ResponseWriter, r *http.Request) {
	lab, err := h.labs.GetOrCreateByAbbrev(r.Context(), chi.URLParam(r, "abbrev"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.labs.Sync(r.Context(), lab); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// Sync — POST /api/v1/labs/{id}/sync
func (h *LabHandler) Sync(w http.ResponseWriter, r *http.Request) {
	lab, err := h.labs.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.labs.Sync(r.Context(), lab); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// SetNotALab — PUT /api/v1/labs/{id}/not-a-lab, тело {"not_a_lab": true}.
func (h *LabHandler) SetNotALab(w http.ResponseWriter, r *http.Request) {
	var req notALabRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.NotALab == nil {
		apierrors.ValidationError(w, "Поле not_a_lab обязательно")
		return
	}

	lab, err := h.labs.Load(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.labs.SetNotALab(r.Context(), lab, *req.NotALab); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabResponse(lab))
}

// SyncAll — POST /api/v1/labs/sync?dn_suffix=
func (h *LabHandler) SyncAll(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.SyncAll(r.Context(), r.URL.Query().Get("dn_suffix"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toLabSyncResponse(result))
}

// AutoFields — GET /api/v1/auto-fields/{postType}
func (h *LabHandler) AutoFields(w http.ResponseWriter, r *http.Request) {
	postType := chi.URLParam(r, "postType")
	fields, err := h.labs.AutoFields(r.Context(), postType)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if fields == nil {
		fields = []string{}
	}
	writeJSON(w, http.StatusOK, autoFieldsResponse{PostType: postType, Fields: fields})
}

func toLabSyncResponse(r *model.LabSyncResult) labSyncResponse {
	return labSyncResponse{
		DNSuffix:    r.DNSuffix,
		Total:       r.Total,
		Synced:      r.Synced,
		NotFound:    r.NotFound,
		Unicity:     r.Unicity,
		Failed:      r.Failed,
		StartedAt:   r.StartedAt.Format(time.RFC3339),
		CompletedAt: r.CompletedAt.Format(time.RFC3339),
	}
}
