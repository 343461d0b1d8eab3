package httpapi

import (
	"errors"
	"net/http"

	"github.com/dsgolman/supportai-bot-sub000/domain"
	apperrors "github.com/dsgolman/supportai-bot-sub000/errors"
)

type startSessionRequest struct {
	GroupID  string `json:"groupId" validate:"required"`
	ResumeID string `json:"resumeId"`
}

type sessionResponse struct {
	Status         string `json:"status"`
	ConversationID string `json:"conversationId"`
}

func (a *API) startSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := a.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "groupId is required")
		return
	}

	conversationID, err := a.manager.StartSession(r.Context(), domain.GroupID(req.GroupID), req.ResumeID)
	if err != nil {
		a.log.Error("Session start failed", "group", req.GroupID, "error", err)
		writeError(w, http.StatusInternalServerError, "session start failed")
		return
	}

	status := string(domain.SessionConnected)
	if session, found, err := a.sessions.Get(domain.GroupID(req.GroupID)); err == nil && found {
		status = string(session.Status)
	}
	writeJSON(w, http.StatusOK, sessionResponse{Status: status, ConversationID: conversationID})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId query parameter is required")
		return
	}

	session, found, err := a.sessions.Get(domain.GroupID(groupID))
	if err != nil {
		a.log.Error("Session read failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "session read failed")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "session not initialized")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Status:         string(session.Status),
		ConversationID: session.ConversationID,
	})
}

func (a *API) deleteSession(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "groupId query parameter is required")
		return
	}

	if _, found, err := a.sessions.Get(domain.GroupID(groupID)); err != nil {
		a.log.Error("Session read failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "session read failed")
		return
	} else if !found {
		writeError(w, http.StatusNotFound, "session not initialized")
		return
	}

	if err := a.manager.CloseSession(r.Context(), domain.GroupID(groupID)); err != nil {
		if errors.Is(err, apperrors.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not initialized")
			return
		}
		a.log.Error("Session close failed", "group", groupID, "error", err)
		writeError(w, http.StatusInternalServerError, "session close failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(domain.SessionDisconnected)})
}
