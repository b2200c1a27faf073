package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"coderooms/pkg/auth"
	"coderooms/pkg/db"
	"coderooms/pkg/files"
	"coderooms/pkg/room"
)

// Handlers contains all HTTP and WebSocket handlers.
type Handlers struct {
	store     db.FileStore
	hub       *room.Hub
	autoSaver *files.AutoSaver
	auth      *auth.Auth

	events map[string]eventHandler
}

// NewHandlers wires the handlers to their collaborators.
func NewHandlers(store db.FileStore, hub *room.Hub, autoSaver *files.AutoSaver, authn *auth.Auth) *Handlers {
	h := &Handlers{
		store:     store,
		hub:       hub,
		autoSaver: autoSaver,
		auth:      authn,
	}
	h.events = map[string]eventHandler{
		room.EventJoin:           h.onJoin,
		room.EventSyncCode:       h.onSyncCode,
		room.EventCodeChange:     h.onCodeChange,
		room.EventLanguageChange: h.onLanguageChange,
		room.EventAutoSave:       h.onAutoSave,
	}
	return h
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("error encoding response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"message": message})
}

// storeError maps the store's error taxonomy onto status codes.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		errorResponse(w, http.StatusNotFound, "File not found")
	case errors.Is(err, db.ErrAccessDenied):
		errorResponse(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, db.ErrValidation):
		errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("store error: %v", err)
		errorResponse(w, http.StatusInternalServerError, "Internal server error")
	}
}

// resolveID turns a parsed ref into a durable document id.
func (h *Handlers) resolveID(ctx context.Context, ref db.Ref) (string, error) {
	if ref.Kind == db.RefByID {
		return ref.Value, nil
	}
	doc, err := h.store.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Health is the unauthenticated liveness probe.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateFile creates a fresh room with its document.
func (h *Handlers) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	userID := auth.UserID(r.Context())
	roomID := uuid.New().String()

	doc, _, err := h.store.FindOrCreate(r.Context(), roomID, userID, req.Language)
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"fileId": doc.ID,
		"roomId": doc.RoomID,
		"file":   doc,
	})
}

// OpenFile resolves a document by durable id or room id. An unknown room id
// creates the document on first open, so joining a freshly shared room link
// works without a separate create call.
func (h *Handlers) OpenFile(w http.ResponseWriter, r *http.Request) {
	ref, err := db.ParseRef(mux.Vars(r)["id"])
	if err != nil {
		storeError(w, err)
		return
	}
	userID := auth.UserID(r.Context())

	doc, err := h.store.Open(r.Context(), ref, userID)
	if errors.Is(err, db.ErrNotFound) && ref.Kind == db.RefByRoom {
		if _, _, cerr := h.store.FindOrCreate(r.Context(), ref.Value, userID, db.DefaultLanguage); cerr != nil {
			storeError(w, cerr)
			return
		}
		doc, err = h.store.Open(r.Context(), ref, userID)
	}
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, doc)
}

// SaveFile is the explicit, version-incrementing save path.
func (h *Handlers) SaveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"fileId"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	version, err := h.store.Save(r.Context(), req.FileID, req.Code, auth.UserID(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message": "File saved",
		"version": version,
	})
}

// AutoSaveFile is the background save path: it responds 204 no matter what,
// failures included, so the editing client is never interrupted.
func (h *Handlers) AutoSaveFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID string `json:"fileId"`
		Code   string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
		if ref, err := db.ParseRef(req.FileID); err == nil {
			h.autoSaver.Save(r.Context(), ref, req.Code, auth.UserID(r.Context()))
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeLanguage switches the language and regenerates the file extension.
func (h *Handlers) ChangeLanguage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID   string `json:"fileId"`
		Language string `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	doc, err := h.store.ChangeLanguage(r.Context(), req.FileID, req.Language, auth.UserID(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

// RenameFile replaces the filename stem, keeping the extension.
func (h *Handlers) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID  string `json:"fileId"`
		NewName string `json:"newName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	doc, err := h.store.Rename(r.Context(), req.FileID, req.NewName, auth.UserID(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

// ChangeExtension sets the extension directly from the allow-list.
func (h *Handlers) ChangeExtension(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FileID    string `json:"fileId"`
		Extension string `json:"extension"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	doc, err := h.store.ChangeExtension(r.Context(), req.FileID, req.Extension, auth.UserID(r.Context()))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, doc)
}

// ListFiles returns everything the caller owns or collaborates on.
func (h *Handlers) ListFiles(w http.ResponseWriter, r *http.Request) {
	h.listFiles(w, r, false)
}

// RecentFiles caps the listing to the most recently modified few.
func (h *Handlers) RecentFiles(w http.ResponseWriter, r *http.Request) {
	h.listFiles(w, r, true)
}

func (h *Handlers) listFiles(w http.ResponseWriter, r *http.Request, recentOnly bool) {
	docs, err := h.store.ListForUser(r.Context(), auth.UserID(r.Context()), recentOnly)
	if err != nil {
		storeError(w, err)
		return
	}
	if docs == nil {
		docs = []*db.Document{}
	}
	jsonResponse(w, http.StatusOK, docs)
}

// FileMeta returns the summary projection without the code body.
func (h *Handlers) FileMeta(w http.ResponseWriter, r *http.Request) {
	ref, err := db.ParseRef(mux.Vars(r)["id"])
	if err != nil {
		storeError(w, err)
		return
	}

	doc, err := h.store.Get(r.Context(), ref)
	if err != nil {
		storeError(w, err)
		return
	}
	if doc.IsDeleted {
		errorResponse(w, http.StatusNotFound, "File not found")
		return
	}
	if !db.HasViewAccess(doc, auth.UserID(r.Context())) {
		errorResponse(w, http.StatusForbidden, "Access denied")
		return
	}

	jsonResponse(w, http.StatusOK, doc.Meta())
}

// DeleteFile soft-deletes; owner only.
func (h *Handlers) DeleteFile(w http.ResponseWriter, r *http.Request) {
	ref, err := db.ParseRef(mux.Vars(r)["id"])
	if err != nil {
		storeError(w, err)
		return
	}
	id, err := h.resolveID(r.Context(), ref)
	if err != nil {
		storeError(w, err)
		return
	}

	if err := h.store.SoftDelete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "File deleted"})
}

// RestoreFile clears the soft-delete flag; idempotent.
func (h *Handlers) RestoreFile(w http.ResponseWriter, r *http.Request) {
	ref, err := db.ParseRef(mux.Vars(r)["id"])
	if err != nil {
		storeError(w, err)
		return
	}
	id, err := h.resolveID(r.Context(), ref)
	if err != nil {
		storeError(w, err)
		return
	}

	if err := h.store.Restore(r.Context(), id, auth.UserID(r.Context())); err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "File restored"})
}
