package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

type credentials struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword,omitempty"`
}

type rateRequest struct {
	Media  models.Media `json:"media"`
	Rating float64      `json:"rating"`
}

type rateResponse struct {
	*tasks.PromotionResult
	Warning string `json:"warning,omitempty"`
}

type listResponse struct {
	List     models.ListKind    `json:"list"`
	Items    []models.ListEntry `json:"items"`
	Degraded bool               `json:"degraded,omitempty"`
}

type catalogResponse struct {
	Items    []models.ReconciledMedia `json:"items"`
	Degraded bool                     `json:"degraded,omitempty"`
}

type homeResponse struct {
	Trending []models.ReconciledMedia `json:"trending"`
	People   []models.Person          `json:"people"`
	Degraded bool                     `json:"degraded,omitempty"`
}

type titleResponse struct {
	*models.Details
	InWatchlist bool     `json:"inWatchlist"`
	Watched     bool     `json:"watched"`
	UserRating  *float64 `json:"userRating,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok", "keyScheme": string(s.lists.Scheme())}
	if s.auth != nil {
		body["auth"] = s.auth.Name()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, fmt.Errorf("%w: email and password", shared.ErrMissingArgument))
		return
	}

	session, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, fmt.Errorf("%w: email and password", shared.ErrMissingArgument))
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, shared.ErrPasswordMismatch)
		return
	}

	session, err := s.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if session == nil {
		writeJSON(w, http.StatusAccepted, map[string]bool{"confirmationRequired": true})
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, shared.ErrNotAuthenticated)
		return
	}
	if err := s.auth.SignOut(r.Context(), &models.Session{AccessToken: token, User: IdentityFrom(r.Context())}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Email == "" {
		writeError(w, fmt.Errorf("%w: email", shared.ErrMissingArgument))
		return
	}
	if err := s.auth.ResetPassword(r.Context(), req.Email, s.redirectTo); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"sent": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id := IdentityFrom(r.Context())
	if id.Anonymous() {
		writeError(w, shared.ErrNotAuthenticated)
		return
	}

	profile, err := s.auth.Profile(r.Context(), id)
	if err != nil {
		s.logger.Warn("failed to load profile", "user_id", id.UserID, "error", err)
		profile = models.Profile{UserID: id.UserID, Username: models.DefaultUsername(id.Email)}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": id, "profile": profile})
}

func listParam(r *http.Request) (models.ListKind, error) {
	kind, err := models.ParseListKind(r.PathValue("list"))
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
	}
	return kind, nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", shared.ErrInvalidArgument, r.PathValue("id"))
	}
	return id, nil
}

func typeParam(v string) (models.MediaType, error) {
	mt, err := models.ParseMediaType(v)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrInvalidArgument, err)
	}
	return mt, nil
}

// owner returns the caller's user id or writes 401.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := IdentityFrom(r.Context())
	if id.Anonymous() {
		writeError(w, shared.ErrNotAuthenticated)
		return "", false
	}
	return id.UserID, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := s.lists.Query(r.Context(), IdentityFrom(r.Context()).UserID, kind)
	writeJSON(w, http.StatusOK, listResponse{List: kind, Items: entries, Degraded: err != nil})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	uid, ok := owner(w, r)
	if !ok {
		return
	}
	var media models.Media
	if err := decodeJSON(r, &media); err != nil {
		writeError(w, err)
		return
	}

	release, err := s.guard.Acquire(uid, kind, media.Type(), media.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	item, err := s.lists.Add(r.Context(), uid, kind, media)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := models.NewListEntry(item)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	uid, ok := owner(w, r)
	if !ok {
		return
	}
	var media models.Media
	if err := decodeJSON(r, &media); err != nil {
		writeError(w, err)
		return
	}

	on, err := tasks.Toggle(r.Context(), s.lists, s.guard, uid, kind, media)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"list": kind, "id": media.ID, "onList": on})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	mt, err := typeParam(r.URL.Query().Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}
	ref := models.ItemRef{MediaID: id, MediaType: mt}
	if row := r.URL.Query().Get("row"); row != "" {
		if ref.RowID, err = strconv.ParseInt(row, 10, 64); err != nil {
			writeError(w, fmt.Errorf("%w: row %q", shared.ErrInvalidArgument, row))
			return
		}
	}
	uid, ok := owner(w, r)
	if !ok {
		return
	}

	release, err := s.guard.Acquire(uid, kind, mt, id)
	if err != nil {
		writeError(w, err)
		return
	}
	defer release()

	removed, err := s.lists.Remove(r.Context(), uid, kind, ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	kind, err := listParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	n, err := s.lists.Count(r.Context(), IdentityFrom(r.Context()).UserID, kind)
	writeJSON(w, http.StatusOK, countEvent{List: kind, Count: n, Degraded: err != nil})
}

func (s *Server) handleGetWatched(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	uid, ok := owner(w, r)
	if !ok {
		return
	}

	payload, err := s.lists.GetWatched(r.Context(), uid, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if payload == nil {
		writeError(w, fmt.Errorf("%w: watched item %d", shared.ErrNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	uid, ok := owner(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Media.ID <= 0 {
		writeError(w, fmt.Errorf("%w: media id", shared.ErrMissingArgument))
		return
	}

	res, err := s.ratings.Submit(r.Context(), uid, req.Media, req.Rating)
	switch {
	case errors.Is(err, shared.ErrPartialPromotion) && res != nil:
		writeJSON(w, http.StatusOK, rateResponse{PromotionResult: res, Warning: err.Error()})
	case err != nil:
		writeError(w, err)
	default:
		writeJSON(w, http.StatusOK, rateResponse{PromotionResult: res})
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	feed := services.LoadHome(r.Context(), s.catalog, s.logger)
	trending, err := s.reconciler.Reconcile(r.Context(), IdentityFrom(r.Context()).UserID, feed.Trending)
	writeJSON(w, http.StatusOK, homeResponse{Trending: trending, People: feed.People, Degraded: feed.Degraded || err != nil})
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	items, err := s.catalog.Trending(r.Context())
	if err != nil {
		s.logger.Error("failed to load trending titles", "error", err)
	}
	s.writeReconciled(w, r, items, err != nil)
}

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	people, err := s.catalog.PopularPeople(r.Context())
	if err != nil {
		s.logger.Error("failed to load popular people", "error", err)
		people = []models.Person{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": people, "degraded": err != nil})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, fmt.Errorf("%w: q", shared.ErrMissingArgument))
		return
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeError(w, fmt.Errorf("%w: page %q", shared.ErrInvalidArgument, p))
			return
		}
		page = n
	}

	var items []models.Media
	res, err := s.catalog.Search(r.Context(), q, page)
	if err != nil {
		s.logger.Error("search failed", "query", q, "error", err)
	} else {
		items = res.Results
	}
	s.writeReconciled(w, r, items, err != nil)
}

func (s *Server) writeReconciled(w http.ResponseWriter, r *http.Request, items []models.Media, degraded bool) {
	annotated, err := s.reconciler.Reconcile(r.Context(), IdentityFrom(r.Context()).UserID, items)
	writeJSON(w, http.StatusOK, catalogResponse{Items: annotated, Degraded: degraded || err != nil})
}

func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	mt, err := typeParam(r.PathValue("type"))
	if err == nil && !mt.Valid() {
		err = fmt.Errorf("%w: media type is required", shared.ErrInvalidArgument)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	details, err := s.catalog.Details(r.Context(), mt, id)
	if err != nil {
		s.logger.Error("failed to load title", "media_type", mt, "id", id, "error", err)
		writeError(w, err)
		return
	}

	uid := IdentityFrom(r.Context()).UserID
	resp := titleResponse{Details: details}
	media := models.Media{ID: id, MediaType: mt}
	if m, err := s.reconciler.Load(r.Context(), uid); err == nil {
		resp.InWatchlist = m.Has(models.ToWatch, media)
		resp.Watched = m.Has(models.Watched, media)
	}
	if resp.Watched {
		if p, err := s.lists.GetWatched(r.Context(), uid, id); err == nil && p != nil {
			resp.UserRating = p.UserRating
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	c, err := s.catalog.Collection(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to load collection", "id", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
