// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers implements the REST surface of the category tree. Every
// response uses the api envelope.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"knowtree/internal/api"
	"knowtree/internal/category"
)

// Categories serves the /categories endpoints.
type Categories struct {
	svc *category.Service
}

// NewCategories creates the category handlers.
func NewCategories(svc *category.Service) *Categories {
	return &Categories{svc: svc}
}

// Routes returns a router for everything below /categories. Static
// segments win over {id} in chi, so /tree and friends never parse as ids.
func (h *Categories) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/root", h.Roots)
	r.Get("/tree", h.Tree)
	r.Get("/stats", h.StatsAll)
	r.Get("/search", h.Search)
	r.Get("/popular", h.Popular)
	r.Get("/recent", h.Recent)
	r.Post("/batch-sort", h.BatchSort)
	r.Get("/validate/name", h.ValidateName)
	r.Get("/validate/depth", h.ValidateDepth)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
		r.Get("/children", h.Children)
		r.Get("/subtree", h.Subtree)
		r.Get("/path", h.Path)
		r.Get("/depth", h.Depth)
		r.Get("/stats", h.Stats)
		r.Get("/can-delete", h.CanDelete)
		r.Put("/move", h.Move)
		r.Put("/sort", h.Sort)
	})

	return r
}

// --- mutations ---

// Create handles POST /categories.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req createRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.svc.Create(r.Context(), category.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusCreated, c)
}

// Update handles PUT /categories/{id}.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req updateRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.svc.Update(r.Context(), id, category.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		SortOrder:   req.SortOrder,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

// Delete handles DELETE /categories/{id}.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, nil)
}

// Move handles PUT /categories/{id}/move. Without newParentId the category
// becomes a root.
func (h *Categories) Move(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	parentID, err := queryID(r, "newParentId")
	if err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.svc.Move(r.Context(), id, parentID)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

// Sort handles PUT /categories/{id}/sort?sortOrder=.
func (h *Categories) Sort(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if !r.URL.Query().Has("sortOrder") {
		fail(w, r, fmt.Errorf("%w: sortOrder is required", category.ErrInvalidInput))
		return
	}
	order, err := queryInt(r, "sortOrder", 0)
	if err != nil {
		fail(w, r, err)
		return
	}

	c, err := h.svc.UpdateSortOrder(r.Context(), id, order)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

// BatchSort handles POST /categories/batch-sort. Either every item is
// applied or none is.
func (h *Categories) BatchSort(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	items, err := decodeSortItems(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.BatchUpdateSortOrder(r.Context(), items); err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, nil)
}

// --- reads ---

// Get handles GET /categories/{id}.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, c)
}

// List handles GET /categories.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.ListAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, all)
}

// Roots handles GET /categories/root.
func (h *Categories) Roots(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.ListRoots(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, roots)
}

// Children handles GET /categories/{id}/children.
func (h *Categories) Children(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	kids, err := h.svc.ListChildren(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, kids)
}

// Tree handles GET /categories/tree.
func (h *Categories) Tree(w http.ResponseWriter, r *http.Request) {
	roots, err := h.svc.FullTree(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, roots)
}

// Subtree handles GET /categories/{id}/subtree.
func (h *Categories) Subtree(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	sub, err := h.svc.Subtree(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, sub)
}

// Path handles GET /categories/{id}/path.
func (h *Categories) Path(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	path, err := h.svc.Path(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, path)
}

// Depth handles GET /categories/{id}/depth.
func (h *Categories) Depth(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	depth, err := h.svc.Depth(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, depth)
}

// Search handles GET /categories/search?keyword=.
func (h *Categories) Search(w http.ResponseWriter, r *http.Request) {
	found, err := h.svc.Search(r.Context(), r.URL.Query().Get("keyword"))
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, found)
}

// Popular handles GET /categories/popular?limit=.
func (h *Categories) Popular(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", category.DefaultLimit)
	if err != nil {
		fail(w, r, err)
		return
	}
	top, err := h.svc.Popular(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, top)
}

// Recent handles GET /categories/recent?limit=.
func (h *Categories) Recent(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", category.DefaultLimit)
	if err != nil {
		fail(w, r, err)
		return
	}
	recent, err := h.svc.RecentlyUsed(r.Context(), limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, recent)
}

// Stats handles GET /categories/{id}/stats.
func (h *Categories) Stats(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	st, err := h.svc.Stats(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, st)
}

// StatsAll handles GET /categories/stats.
func (h *Categories) StatsAll(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.StatsAll(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, all)
}

// CanDelete handles GET /categories/{id}/can-delete.
func (h *Categories) CanDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok, err := h.svc.CanDelete(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, ok)
}

// ValidateName handles GET /categories/validate/name. The result is true
// when the name is free among the siblings.
func (h *Categories) ValidateName(w http.ResponseWriter, r *http.Request) {
	parentID, err := queryID(r, "parentId")
	if err != nil {
		fail(w, r, err)
		return
	}
	excludeID, err := queryID(r, "excludeId")
	if err != nil {
		fail(w, r, err)
		return
	}
	ok, err := h.svc.ValidateName(r.Context(), r.URL.Query().Get("name"), parentID, excludeID)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, ok)
}

// ValidateDepth handles GET /categories/validate/depth.
func (h *Categories) ValidateDepth(w http.ResponseWriter, r *http.Request) {
	parentID, err := queryID(r, "parentId")
	if err != nil {
		fail(w, r, err)
		return
	}
	ok, err := h.svc.ValidateDepth(r.Context(), parentID)
	if err != nil {
		fail(w, r, err)
		return
	}
	api.Success(w, http.StatusOK, ok)
}
