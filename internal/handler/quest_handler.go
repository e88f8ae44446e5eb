package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/sekolahku/merit/internal/auth"
	"github.com/sekolahku/merit/internal/service"
)

// QuestHandler handles quest CRUD and completion requests.
type QuestHandler struct {
	quests *service.QuestService
	logger zerolog.Logger
}

// NewQuestHandler creates a new QuestHandler.
func NewQuestHandler(quests *service.QuestService, logger zerolog.Logger) *QuestHandler {
	return &QuestHandler{
		quests: quests,
		logger: logger.With().Str("handler", "quests").Logger(),
	}
}

// RegisterRoutes registers quest routes.
func (h *QuestHandler) RegisterRoutes(r chi.Router) {
	r.Get("/quests", h.handleList)
	r.Get("/quests/{id}", h.handleGet)
	r.Post("/quests/{id}/complete", h.handleComplete)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireRole(rolesStaff...))
		r.Post("/quests", h.handleCreate)
		r.Patch("/quests/{id}", h.handleUpdate)
		r.Delete("/quests/{id}", h.handleDelete)
	})
}

func (h *QuestHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var input service.CreateQuestInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	quest, err := h.quests.Create(r.Context(), input, actorID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, quest)
}

func (h *QuestHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	quest, err := h.quests.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quest)
}

func (h *QuestHandler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := h.quests.List(r.Context(), service.ListQuestsQuery{
		Type:       q.Get("type"),
		ActiveOnly: queryBool(q.Get("activeOnly")),
		CreatedBy:  q.Get("createdBy"),
		Page:       queryInt(q.Get("page")),
		Limit:      queryInt(q.Get("limit")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *QuestHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var input service.UpdateQuestInput
	if err := decodeJSON(r, &input); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	quest, err := h.quests.Update(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quest)
}

func (h *QuestHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.quests.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// completeRequest names the student completing the quest. Staff may
// complete on a student's behalf; students complete for themselves.
type completeRequest struct {
	UserID string `json:"userId"`
}

func (h *QuestHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}

	// Only staff may complete a quest on behalf of another student.
	studentID := req.UserID
	if studentID == "" {
		studentID = actorID(r).String()
	} else if studentID != actorID(r).String() && !isStaff(r) {
		forbidden(w)
		return
	}

	out, err := h.quests.Complete(r.Context(), chi.URLParam(r, "id"), studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
