package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dsgolman/supportai-bot-sub000/domain"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

type wsFrame struct {
	Type         string               `json:"type"`
	Message      *domain.Message      `json:"message,omitempty"`
	Participants []domain.Participant `json:"participants,omitempty"`
	Timestamp    int64                `json:"timestamp"`
}

// handleWebsocket upgrades the request and pushes the group's live
// messages and full participant lists until the client goes away.
// Inbound text frames are relayed as user messages.
func (a *API) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("groupId")
	userID := r.URL.Query().Get("userId")
	if groupID == "" || userID == "" {
		writeError(w, http.StatusBadRequest, "groupId and userId query parameters are required")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("Websocket upgrade failed", "group", groupID, "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	group := domain.GroupID(groupID)

	if _, err := a.relay.Join(ctx, group, userID, r.URL.Query().Get("displayName")); err != nil {
		a.log.Warn("Websocket join failed", "group", groupID, "user", userID, "error", err)
		return
	}

	// One writer goroutine owns the socket; feed callbacks only queue.
	var writeMu sync.Mutex
	send := func(frame wsFrame) {
		frame.Timestamp = time.Now().UnixMilli()
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			a.log.Debug("Websocket write failed", "group", groupID, "user", userID, "error", err)
		}
	}

	msgSub := a.relay.SubscribeMessages(ctx, group, func(m domain.Message) {
		send(wsFrame{Type: "message", Message: &m})
	})
	defer msgSub.Unsubscribe()

	peerSub := a.relay.SubscribeParticipants(ctx, group, func(list []domain.Participant) {
		send(wsFrame{Type: "participants", Participants: list})
	})
	defer peerSub.Unsubscribe()

	if list, err := a.relay.Participants(ctx, group); err == nil {
		send(wsFrame{Type: "participants", Participants: list})
	}

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	type inbound struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	for {
		var in inbound
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		if in.Type != "text" || in.Text == "" {
			continue
		}
		if _, err := a.relay.RelayUserText(ctx, group, userID, in.Text); err != nil {
			a.log.Warn("Websocket text relay failed", "group", groupID, "user", userID, "error", err)
		}
	}
}
