package rooms

import (
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	lifecycle "github.com/hilthontt/burner/internal/application/rooms"
	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/json"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
	"github.com/hilthontt/burner/internal/presentation/utils"
)

type Handler struct {
	service    *lifecycle.Service
	core       *ws.Core
	logger     logging.Logger
	upgrader   websocket.Upgrader
	clientOpts ws.ClientOptions
}

func NewHandler(
	service *lifecycle.Service,
	core *ws.Core,
	logger logging.Logger,
	allowedOrigins []string,
	clientOpts ws.ClientOptions,
) *Handler {
	return &Handler{
		service: service,
		core:    core,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		clientOpts: clientOpts,
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

// CreateRoomHandler allocates a new room. It takes no body and issues no
// credential: the creator becomes the owner by entering first.
func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	meta, err := h.service.Create(r.Context())
	if err != nil {
		h.logger.Error(logging.Internal, logging.Lifetime, "failed to create room", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
		json.WriteError(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	json.Write(w, http.StatusOK, createRoomResponse{RoomID: meta.RoomID})
}

// GetRoomHandler answers for a visitor the Gate has already admitted.
func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")

	decision, ok := utils.DecisionFrom(r.Context())
	if !ok || !decision.Admitted {
		json.WriteDomainError(w, domain.ErrNotMember)
		return
	}

	ttl, err := h.service.TTL(r.Context(), roomID)
	if err != nil {
		if !errors.Is(err, domain.ErrRoomNotFound) {
			h.logger.Error(logging.Internal, logging.Lifetime, "failed to read room lifetime", map[logging.ExtraKey]any{
				logging.RoomID:       roomID,
				logging.ErrorMessage: err.Error(),
			})
		}
		json.WriteDomainError(w, err)
		return
	}

	json.Write(w, http.StatusOK, roomResponse{
		RoomID:  roomID,
		IsOwner: decision.IsOwner,
		TTL:     ws.TTLSeconds(ttl),
	})
}

// RelayHandler upgrades to the realtime relay. The identity token is captured
// once here; room membership is checked when the client sends join-room.
func (h *Handler) RelayHandler(w http.ResponseWriter, r *http.Request) {
	token := utils.GetAuthToken(r)
	if token == "" {
		json.WriteError(w, http.StatusUnauthorized, "Missing identity token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(logging.Relay, logging.Connection, "websocket upgrade failed", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
			logging.ClientIp:     r.RemoteAddr,
		})
		return
	}

	client := ws.NewClient(conn, token, h.core, h.logger, h.clientOpts)
	client.Serve(r.Context(), h.service)
}
