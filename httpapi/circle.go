package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

type turnRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

type groupRequest struct {
	GroupID string `json:"groupId" validate:"required"`
}

// turnAction adapts the coordinator's per-user operations to one handler
// shape. The coordinator treats invalid transitions as no-ops, so every
// accepted request answers with the resulting state.
func (a *API) turnAction(op func(ctx context.Context, groupID domain.GroupID, userID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := a.decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "groupId and userId are required")
			return
		}
		groupID := domain.GroupID(req.GroupID)
		if err := op(r.Context(), groupID, req.UserID); err != nil {
			a.log.Error("Turn action failed", "group", req.GroupID, "user", req.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, "turn action failed")
			return
		}
		a.respondTurnState(w, r, groupID)
	}
}

func (a *API) grantNext(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "groupId is required")
		return
	}
	groupID := domain.GroupID(req.GroupID)
	if err := a.coordinator.GrantNext(r.Context(), groupID); err != nil {
		a.log.Error("Grant failed", "group", req.GroupID, "error", err)
		writeError(w, http.StatusInternalServerError, "grant failed")
		return
	}
	a.respondTurnState(w, r, groupID)
}

func (a *API) getTurn(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId query parameter is required")
		return
	}
	a.respondTurnState(w, r, domain.GroupID(groupID))
}

func (a *API) respondTurnState(w http.ResponseWriter, r *http.Request, groupID domain.GroupID) {
	state, err := a.coordinator.State(r.Context(), groupID)
	if err != nil {
		a.log.Error("Turn state read failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "turn state read failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type joinRequest struct {
	GroupID     string `json:"groupId" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
	DisplayName string `json:"displayName"`
}

func (a *API) joinGroup(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "groupId and userId are required")
		return
	}
	participant, err := a.relay.Join(r.Context(), domain.GroupID(req.GroupID), req.UserID, req.DisplayName)
	if err != nil {
		a.log.Error("Join failed", "group", req.GroupID, "user", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "join failed")
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

func (a *API) listParticipants(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId query parameter is required")
		return
	}
	list, err := a.relay.Participants(r.Context(), domain.GroupID(groupID))
	if err != nil {
		a.log.Error("Participant list failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "participant list failed")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type postMessageRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
	Text    string `json:"text" validate:"required"`
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request) {
	var req postMessageRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "groupId, userId and text are required")
		return
	}
	message, err := a.relay.RelayUserText(r.Context(), domain.GroupID(req.GroupID), req.UserID, req.Text)
	if err != nil {
		a.log.Error("Message relay failed", "group", req.GroupID, "user", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "message relay failed")
		return
	}
	writeJSON(w, http.StatusOK, message)
}

type messagePage struct {
	Messages []domain.Message `json:"messages"`
	Cursor   *string          `json:"cursor,omitempty"`
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId query parameter is required")
		return
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}
	messages, next, err := a.messages.List(domain.GroupID(groupID), cursor)
	if err != nil {
		a.log.Error("Message list failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "message list failed")
		return
	}
	writeJSON(w, http.StatusOK, messagePage{Messages: messages, Cursor: next})
}

type mediaTokenRequest struct {
	GroupID string `json:"groupId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}

func (a *API) mediaToken(w http.ResponseWriter, r *http.Request) {
	var req mediaTokenRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "groupId and userId are required")
		return
	}
	creds, err := a.creds.Mint(domain.GroupID(req.GroupID), req.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrCredentialsUnavailable) || errors.Is(err, apperrors.ErrInvalidCredentials) {
			a.log.Error("Media credentials unavailable", "group", req.GroupID, "error", err)
			writeError(w, http.StatusInternalServerError, "media credentials unavailable")
			return
		}
		a.log.Error("Media token mint failed", "group", req.GroupID, "error", err)
		writeError(w, http.StatusInternalServerError, "media token mint failed")
		return
	}
	writeJSON(w, http.StatusOK, creds)
}
