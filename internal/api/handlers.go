// Package api exposes the HTTP surface: the extractor contract, wish
// submission, list reads, claims, and the profile/friend collections.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wishwell/internal/cache"
	"wishwell/internal/extract"
	"wishwell/internal/metrics"
	"wishwell/internal/reconcile"
	"wishwell/internal/storage"
	"wishwell/internal/wish"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps carries the wired components the handlers need.
type Deps struct {
	Store       *storage.Store
	Coordinator *wish.Coordinator
	Reader      *reconcile.Reader
	Cache       *cache.Store
	Extractor   *extract.Extractor
	Metrics     *metrics.Metrics
	Token       string
	Logger      *slog.Logger
}

// NewRouter assembles the full route table. Health, metrics, and the
// extractor contract are open; everything touching user data sits behind
// bearer auth.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	r.Post("/extract", handleExtract(deps.Extractor, deps.Metrics))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/wishes", handleSubmitLinked(deps))
		r.Post("/wishes/manual", handleSubmitManual(deps))
		r.Get("/lists/{ownerID}/items", handleListItems(deps))
		r.Patch("/items/{id}", handleEditItem(deps))
		r.Delete("/items/{id}", handleDeleteItem(deps))
		r.Post("/items/{id}/claim", handleClaimItem(deps))
		r.Put("/profiles", handleUpsertProfile(deps))
		r.Get("/profiles/{id}", handleGetProfile(deps))
		r.Post("/friends", handleAddFriend(deps))
		r.Get("/friends/{userID}", handleListFriends(deps))
		r.Get("/friends/{userID}/items", handleFriendItems(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// --- Submissions ---

type linkedWishRequest struct {
	URL     string     `json:"url"`
	Message string     `json:"message"`
	ListID  string     `json:"list_id"`
	Owner   wish.Owner `json:"owner"`
}

func handleSubmitLinked(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req linkedWishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Owner.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner.id is required")
			return
		}

		listID, err := resolveList(deps, req.ListID, req.Owner.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving list: %v", err)
			return
		}

		item, err := deps.Coordinator.SubmitLinkedWish(r.Context(), req.URL, req.Owner, listID, req.Message)
		if errors.Is(err, wish.ErrEmptyURL) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "url is required")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "submitting wish: %v", err)
			return
		}

		deps.Metrics.Submissions.WithLabelValues("linked").Inc()
		refreshSnapshot(deps, req.Owner.ID)
		writeJSON(w, http.StatusCreated, item)
	}
}

type manualWishRequest struct {
	Name   string     `json:"name"`
	Price  string     `json:"price"`
	Image  string     `json:"image"`
	ListID string     `json:"list_id"`
	Owner  wish.Owner `json:"owner"`
}

func handleSubmitManual(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req manualWishRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Owner.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner.id is required")
			return
		}

		listID, err := resolveList(deps, req.ListID, req.Owner.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "resolving list: %v", err)
			return
		}

		fields := wish.ManualFields{Name: req.Name, Price: req.Price, Image: req.Image}
		item, err := deps.Coordinator.SubmitManualWish(r.Context(), fields, req.Owner, listID)
		if errors.Is(err, wish.ErrEmptyFields) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "submitting wish: %v", err)
			return
		}

		deps.Metrics.Submissions.WithLabelValues("manual").Inc()
		refreshSnapshot(deps, req.Owner.ID)
		writeJSON(w, http.StatusCreated, item)
	}
}

func resolveList(deps Deps, listID, ownerID string) (string, error) {
	if listID != "" {
		return listID, nil
	}
	list, err := deps.Store.DefaultList(ownerID)
	if err != nil {
		return "", err
	}
	return list.ID, nil
}

// --- List reads ---

func handleListItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := chi.URLParam(r, "ownerID")

		// The read-path may render twice (cached, then refreshed); the HTTP
		// response carries whatever was rendered last.
		var items []storage.Item
		err := deps.Reader.Read(r.Context(), ownerID, func(view []storage.Item) {
			items = view
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading list: %v", err)
			return
		}
		if items == nil {
			items = []storage.Item{}
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleFriendItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		friendIDs, err := deps.Store.ListFriends(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing friends: %v", err)
			return
		}
		if err := deps.Cache.PutFriends(userID, friendIDs); err != nil {
			deps.Logger.Warn("failed to cache friends snapshot", "user_id", userID, "error", err)
		}

		results := deps.Reader.LoadFriendItems(r.Context(), friendIDs)
		writeJSON(w, http.StatusOK, results)
	}
}

// --- Item mutations ---

type editItemRequest struct {
	OwnerID string  `json:"owner_id"`
	Name    *string `json:"name"`
	Price   *string `json:"price"`
	Image   *string `json:"image"`
	Link    *string `json:"link"`
}

func handleEditItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req editItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.OwnerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id is required")
			return
		}

		item, err := deps.Store.GetItem(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading item: %v", err)
			return
		}

		if req.Name != nil {
			item.Name = *req.Name
		}
		if req.Price != nil {
			item.Price = *req.Price
		}
		if req.Image != nil {
			item.Image = *req.Image
		}
		if req.Link != nil {
			item.Link = *req.Link
		}

		err = deps.Store.UpdateItemFields(id, req.OwnerID, item)
		if errors.Is(err, storage.ErrNotFound) {
			// Either gone or owned by someone else; the caller learns no more.
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "updating item: %v", err)
			return
		}

		updated, err := deps.Store.GetItem(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading item: %v", err)
			return
		}
		refreshSnapshot(deps, req.OwnerID)
		writeJSON(w, http.StatusOK, updated)
	}
}

func handleDeleteItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id is required")
			return
		}

		err := deps.Store.DeleteItem(id, ownerID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting item: %v", err)
			return
		}

		refreshSnapshot(deps, ownerID)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

// --- Claims ---

type claimRequest struct {
	ClaimerID string `json:"claimer_id"`
}

func handleClaimItem(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req claimRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ClaimerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "claimer_id is required")
			return
		}

		item, err := deps.Store.ClaimItem(id, req.ClaimerID)
		if errors.Is(err, storage.ErrAlreadyClaimed) {
			deps.Metrics.Claims.WithLabelValues(metrics.ClaimConflict).Inc()
			httpError(w, http.StatusConflict, "claim_conflict", "already claimed by %s", claimerLabel(deps, item.ClaimedBy))
			return
		}
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "item not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "claiming item: %v", err)
			return
		}

		deps.Metrics.Claims.WithLabelValues(metrics.ClaimOK).Inc()
		refreshSnapshot(deps, item.OwnerID)
		writeJSON(w, http.StatusOK, item)
	}
}

// claimerLabel prefers the claimer's username when a profile exists.
func claimerLabel(deps Deps, claimerID string) string {
	p, err := deps.Store.GetProfile(claimerID)
	if err == nil && p.Username != "" {
		return p.Username
	}
	return claimerID
}

// --- Profiles ---

func handleUpsertProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var p storage.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if p.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}

		if err := deps.Store.UpsertProfile(p); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving profile: %v", err)
			return
		}
		if err := deps.Cache.PutProfile(p); err != nil {
			deps.Logger.Warn("failed to cache profile", "profile_id", p.ID, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		p, err := deps.Store.GetProfile(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// --- Friends ---

type addFriendRequest struct {
	UserID   string `json:"user_id"`
	FriendID string `json:"friend_id"`
}

func handleAddFriend(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req addFriendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" || req.FriendID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id and friend_id are required")
			return
		}

		if err := deps.Store.AddFriend(req.UserID, req.FriendID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "adding friend: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "added"})
	}
}

func handleListFriends(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		ids, err := deps.Store.ListFriends(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing friends: %v", err)
			return
		}
		if ids == nil {
			ids = []string{}
		}
		writeJSON(w, http.StatusOK, ids)
	}
}

// refreshSnapshot writes the owner's current list through to the local cache
// after a successful mutation. Best-effort: a cache failure never fails the
// mutation.
func refreshSnapshot(deps Deps, ownerID string) {
	items, err := deps.Store.ListItems(ownerID)
	if err != nil {
		deps.Logger.Warn("failed to refresh list snapshot", "owner_id", ownerID, "error", err)
		return
	}
	if err := deps.Cache.PutItems(ownerID, items); err != nil {
		deps.Logger.Warn("failed to cache list snapshot", "owner_id", ownerID, "error", err)
	}
}
