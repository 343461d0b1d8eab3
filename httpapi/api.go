// Package httpapi is the browser-facing surface: session lifecycle, turn
// actions, presence, message history, media join tokens, and a websocket
// that pushes live messages and participant lists.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/dsgolman/supportai-bot-sub000/contract"
	"github.com/dsgolman/supportai-bot-sub000/facilitator"
	"github.com/dsgolman/supportai-bot-sub000/media"
	"github.com/dsgolman/supportai-bot-sub000/relay"
	"github.com/dsgolman/supportai-bot-sub000/runtime"
)

type API struct {
	log         *slog.Logger
	validate    *validator.Validate
	sessions    contract.SessionStore
	messages    contract.MessageStore
	manager     *facilitator.Manager
	coordinator *runtime.Coordinator
	relay       *relay.Relay
	creds       *media.CredentialService
	upgrader    websocket.Upgrader
}

func New(
	log *slog.Logger,
	sessions contract.SessionStore,
	messages contract.MessageStore,
	manager *facilitator.Manager,
	coordinator *runtime.Coordinator,
	rel *relay.Relay,
	creds *media.CredentialService,
) *API {
	return &API{
		log:         log,
		validate:    validator.New(),
		sessions:    sessions,
		messages:    messages,
		manager:     manager,
		coordinator: coordinator,
		relay:       rel,
		creds:       creds,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/session", a.startSession)
	r.Get("/session", a.getSession)
	r.Delete("/session", a.deleteSession)

	r.Route("/turn", func(t chi.Router) {
		t.Get("/", a.getTurn)
		t.Post("/raise", a.turnAction(a.coordinator.RaiseHand))
		t.Post("/lower", a.turnAction(a.coordinator.LowerHand))
		t.Post("/end", a.turnAction(a.coordinator.EndTurn))
		t.Post("/grant", a.grantNext)
	})

	r.Post("/participants", a.joinGroup)
	r.Get("/participants", a.listParticipants)

	r.Post("/messages", a.postMessage)
	r.Get("/messages", a.listMessages)

	r.Post("/media/token", a.mediaToken)

	r.Get("/ws", a.handleWebsocket)

	return r
}

// decode unmarshals and validates a JSON request body.
func (a *API) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return a.validate.Struct(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
