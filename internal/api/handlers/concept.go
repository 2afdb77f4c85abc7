package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/paper-agent/internal/domain"
	"github.com/Harshitk-cp/paper-agent/internal/service"
)

const defaultConceptListLimit = 50

type ConceptHandler struct {
	catalog *service.CatalogService
	logger  *zap.Logger
}

func NewConceptHandler(catalog *service.CatalogService, logger *zap.Logger) *ConceptHandler {
	return &ConceptHandler{catalog: catalog, logger: logger}
}

func (h *ConceptHandler) conceptID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid concept id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ConceptHandler) writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrConceptNotFound):
		writeError(w, http.StatusNotFound, "concept not found")
	case errors.Is(err, service.ErrConceptLabelEmpty),
		errors.Is(err, service.ErrVariationEmpty),
		errors.Is(err, service.ErrSearchQueryEmpty):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("catalog request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "catalog request failed")
	}
}

type listConceptsResponse struct {
	Concepts []domain.Concept `json:"concepts"`
	Total    int              `json:"total"`
}

func (h *ConceptHandler) List(w http.ResponseWriter, r *http.Request) {
	concepts, err := h.catalog.ListConcepts(r.Context(), queryInt(r, "limit", defaultConceptListLimit))
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	total, err := h.catalog.CountConcepts(r.Context())
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	if concepts == nil {
		concepts = []domain.Concept{}
	}
	writeJSON(w, http.StatusOK, listConceptsResponse{Concepts: concepts, Total: total})
}

type searchResponse struct {
	Query   string                `json:"query"`
	Matches []domain.ConceptMatch `json:"matches"`
}

func (h *ConceptHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	matches, err := h.catalog.FindSimilar(r.Context(), q,
		queryInt(r, "top_k", service.DefaultSearchTopK),
		queryFloat(r, "threshold", domain.SameConceptThreshold))
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Matches: matches})
}

type createConceptRequest struct {
	Label   string `json:"label"`
	Essence string `json:"essence"`
}

type createConceptResponse struct {
	ConceptID      uuid.UUID             `json:"concept_id"`
	IsNew          bool                  `json:"is_new"`
	Similarity     *float64              `json:"similarity"`
	MergedWith     *uuid.UUID            `json:"merged_with"`
	VariationAdded bool                  `json:"variation_added"`
	Band           domain.SimilarityBand `json:"band,omitempty"`
}

// Create saves a concept. A label that matches an existing concept returns
// that concept with 200; a new concept returns 201.
func (h *ConceptHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createConceptRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.catalog.SaveConcept(r.Context(), req.Label, req.Essence, nil)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	status := http.StatusOK
	if res.IsNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, createConceptResponse{
		ConceptID:      res.ConceptID,
		IsNew:          res.IsNew,
		Similarity:     res.Similarity,
		MergedWith:     res.MergedWith,
		VariationAdded: res.VariationAdded,
		Band:           res.Band,
	})
}

func (h *ConceptHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}
	c, err := h.catalog.GetConcept(r.Context(), id)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ConceptHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}
	if err := h.catalog.DeleteConcept(r.Context(), id); err != nil {
		h.writeCatalogError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type addVariationRequest struct {
	Variation string `json:"variation"`
}

func (h *ConceptHandler) AddVariation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.conceptID(w, r)
	if !ok {
		return
	}
	var req addVariationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	added, err := h.catalog.AddVariation(r.Context(), id, req.Variation)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

type ideaConceptsResponse struct {
	IdeaID   string           `json:"idea_id"`
	Concepts []domain.Concept `json:"concepts"`
}

func (h *ConceptHandler) ForIdea(w http.ResponseWriter, r *http.Request) {
	ideaID := chi.URLParam(r, "id")
	concepts, err := h.catalog.ConceptsForIdea(r.Context(), ideaID)
	if err != nil {
		h.writeCatalogError(w, err)
		return
	}
	if concepts == nil {
		concepts = []domain.Concept{}
	}
	writeJSON(w, http.StatusOK, ideaConceptsResponse{IdeaID: ideaID, Concepts: concepts})
}
