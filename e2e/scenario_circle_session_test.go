package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type testCircleSessionSuite struct {
	BaseHTTPSuite
}

func TestCircleSessionSuite(t *testing.T) {
	suite.Run(t, &testCircleSessionSuite{})
}

func (s *testCircleSessionSuite) TestFullCircleFlow() {
	group := s.Config.GroupID

	// --- STEP 0: START THE FACILITATOR SESSION ---
	s.Run("Step 0: Start facilitator session", func() {
		var session struct {
			Status         string `json:"status"`
			ConversationID string `json:"conversationId"`
		}
		response := s.PostJSON("/session", map[string]string{"groupId": group}, &session)
		s.Require().Equal(http.StatusOK, response.StatusCode)
		s.Require().Equal("connected", session.Status)
		s.Require().NotEmpty(session.ConversationID)
	})

	// --- STEP 1: PRESENCE ---
	s.Run("Step 1: Join two participants", func() {
		for _, user := range []string{"alice", "bob"} {
			response := s.PostJSON("/participants", map[string]string{
				"groupId": group, "userId": user, "displayName": user,
			}, nil)
			s.Require().Equal(http.StatusOK, response.StatusCode)
		}

		var list []map[string]any
		response := s.GetJSON("/participants?groupId="+group, &list)
		s.Require().Equal(http.StatusOK, response.StatusCode)
		s.Require().GreaterOrEqual(len(list), 2)
	})

	// --- STEP 2: TURN ROTATION ---
	s.Run("Step 2: Raise, grant and end a turn", func() {
		var state struct {
			CurrentSpeaker string `json:"current_speaker"`
		}
		response := s.PostJSON("/turn/raise", map[string]string{"groupId": group, "userId": "alice"}, nil)
		s.Require().Equal(http.StatusOK, response.StatusCode)

		response = s.PostJSON("/turn/grant", map[string]string{"groupId": group}, &state)
		s.Require().Equal(http.StatusOK, response.StatusCode)
		s.Require().Equal("alice", state.CurrentSpeaker)

		response = s.PostJSON("/turn/end", map[string]string{"groupId": group, "userId": "alice"}, &state)
		s.Require().Equal(http.StatusOK, response.StatusCode)
		s.Require().Empty(state.CurrentSpeaker)
	})

	// --- STEP 3: MESSAGE HISTORY ---
	s.Run("Step 3: Post a message and read it back", func() {
		response := s.PostJSON("/messages", map[string]string{
			"groupId": group, "userId": "alice", "text": "hello from the e2e suite",
		}, nil)
		s.Require().Equal(http.StatusOK, response.StatusCode)

		s.Require().Eventually(func() bool {
			var page struct {
				Messages []struct {
					Body string `json:"body"`
				} `json:"messages"`
			}
			read := s.GetJSON("/messages?groupId="+group, &page)
			if read.StatusCode != http.StatusOK {
				return false
			}
			for _, m := range page.Messages {
				if m.Body == "hello from the e2e suite" {
					return true
				}
			}
			return false
		}, 10*time.Second, 500*time.Millisecond, "posted message never appeared in history")
	})

	// --- STEP 4: TEARDOWN ---
	s.Run("Step 4: Close the session", func() {
		response := s.Delete("/session?groupId=" + group)
		s.Require().Equal(http.StatusOK, response.StatusCode)

		var session struct {
			Status string `json:"status"`
		}
		read := s.GetJSON("/session?groupId="+group, &session)
		s.Require().Equal(http.StatusOK, read.StatusCode)
		s.Require().Equal("disconnected", session.Status)
	})
}
