package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/rs/zerolog"

	"github.com/pgbridge/pgbridge/internal/gql"
	"github.com/pgbridge/pgbridge/internal/middleware"
)

// graphql-transport-ws message types
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// wsSubprotocol is advertised during the handshake.
const wsSubprotocol = "graphql-transport-ws"

// wsMessage is the graphql-transport-ws envelope.
type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload is the payload of a subscribe message.
type subscribePayload struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// SubscriptionHandler speaks the graphql-transport-ws subprotocol and
// bridges subscriptions onto the CDC-backed schema.
type SubscriptionHandler struct {
	schemas  *GraphQLHandler
	guard    *middleware.Guard
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewSubscriptionHandler creates the WebSocket handler.
func NewSubscriptionHandler(schemas *GraphQLHandler, guard *middleware.Guard, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		schemas: schemas,
		guard:   guard,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{wsSubprotocol},
		},
		logger: logger,
	}
}

// session is the per-connection state: the write lock and the registry of
// live subscriptions keyed by client-chosen id. Entries are mutated only
// from the session's read loop.
type session struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	writeMu sync.Mutex
	closed  bool

	subs map[string]context.CancelFunc
}

// send writes one message; writes to a closed session are no-ops.
func (s *session) send(msg wsMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug().Err(err).Msg("websocket write failed")
	}
}

func (s *session) markClosed() {
	s.writeMu.Lock()
	s.closed = true
	s.writeMu.Unlock()
}

// HandleSubscriptions upgrades the connection and runs the session loop.
func (h *SubscriptionHandler) HandleSubscriptions(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	middleware.WebSocketOpened()
	defer middleware.WebSocketClosed()

	clientID := uuid.New().String()
	sessionLogger := h.logger.With().Str("client_id", clientID).Logger()
	sessionLogger.Info().Msg("subscription client connected")

	role := c.GetHeader(DatabaseRoleHeader)
	if err := h.guard.ValidateRole(role); err != nil {
		sessionLogger.Warn().Err(err).Msg("invalid role on subscription handshake")
		conn.Close()
		return
	}

	sess := &session{
		conn:   conn,
		logger: sessionLogger,
		subs:   make(map[string]context.CancelFunc),
	}

	baseCtx, cancelAll := context.WithCancel(c.Request.Context())

	defer func() {
		sess.markClosed()
		cancelAll()
		for id, cancel := range sess.subs {
			cancel()
			delete(sess.subs, id)
		}
		sessionLogger.Info().Msg("subscription client disconnected")
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sessionLogger.Debug().Err(err).Msg("websocket read error")
			}
			return
		}

		switch msg.Type {
		case msgConnectionInit:
			sess.send(wsMessage{Type: msgConnectionAck})
		case msgPing:
			sess.send(wsMessage{Type: msgPong})
		case msgSubscribe:
			h.startSubscription(baseCtx, sess, role, msg)
		case msgComplete:
			if cancel, ok := sess.subs[msg.ID]; ok {
				cancel()
				delete(sess.subs, msg.ID)
			}
		default:
			// unknown message types are ignored per protocol
		}
	}
}

// startSubscription begins a stream for one subscribe message. A repeated
// id cancels the prior stream first.
func (h *SubscriptionHandler) startSubscription(baseCtx context.Context, sess *session, role string, msg wsMessage) {
	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Query == "" {
		sess.send(errorMessage(msg.ID, "invalid subscribe payload"))
		return
	}

	if err := h.guard.CheckQuery(payload.Query); err != nil {
		middleware.RecordGuardRejection("query-shape")
		sess.send(errorMessage(msg.ID, err.Error()))
		return
	}

	schema, err := h.schemas.Schema(baseCtx)
	if err != nil {
		sess.send(errorMessage(msg.ID, "failed to initialize GraphQL schema"))
		return
	}

	if prior, ok := sess.subs[msg.ID]; ok {
		prior()
		delete(sess.subs, msg.ID)
	}

	subCtx, cancel := context.WithCancel(baseCtx)
	subCtx = gql.WithExecutionContext(subCtx, gql.NewExecutionContext(role))
	sess.subs[msg.ID] = cancel

	results := graphql.Subscribe(graphql.Params{
		Schema:         *schema,
		RequestString:  payload.Query,
		VariableValues: payload.Variables,
		OperationName:  payload.OperationName,
		Context:        subCtx,
	})

	id := msg.ID
	go func() {
		defer cancel()
		for result := range results {
			if result == nil {
				continue
			}
			if len(result.Errors) > 0 {
				sess.send(wsMessage{
					ID:      id,
					Type:    msgError,
					Payload: marshalPayload(convertErrors(result.Errors)),
				})
				return
			}
			middleware.RecordCDCEvent(resultOperation(result))
			sess.send(wsMessage{
				ID:      id,
				Type:    msgNext,
				Payload: marshalPayload(map[string]interface{}{"data": result.Data}),
			})
		}
		sess.send(wsMessage{ID: id, Type: msgComplete})
	}()
}

func errorMessage(id, message string) wsMessage {
	return wsMessage{
		ID:      id,
		Type:    msgError,
		Payload: marshalPayload([]GraphQLError{{Message: message}}),
	}
}

func marshalPayload(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}

// resultOperation digs the change operation out of a subscription result
// for metric labelling.
func resultOperation(result *graphql.Result) string {
	data, ok := result.Data.(map[string]interface{})
	if !ok {
		return "unknown"
	}
	for _, v := range data {
		if event, ok := v.(map[string]interface{}); ok {
			if op, ok := event["operation"].(string); ok {
				return op
			}
		}
	}
	return "unknown"
}
