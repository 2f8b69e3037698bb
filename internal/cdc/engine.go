package cdc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
)

const (
	standbyUpdateInterval = 10 * time.Second
	maxReconnectBackoff   = time.Minute
)

// Config configures the replication consumer.
type Config struct {
	DatabaseURL       string
	SlotName          string
	PublicationName   string
	HeartbeatInterval time.Duration
}

// Engine consumes PostgreSQL logical replication on one dedicated
// connection, decodes pgoutput messages into Events and fans them out
// through the broadcaster. On connection loss it reconnects with
// exponential backoff and resumes from the last confirmed LSN.
type Engine struct {
	cfg         Config
	logger      zerolog.Logger
	broadcaster *Broadcaster

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	confirmed   pglogrepl.LSN
	relations   map[uint32]*pglogrepl.RelationMessage
	typeMap     *pgtype.Map
	errorWindow bool
}

// NewEngine creates an engine publishing into the given broadcaster.
func NewEngine(cfg Config, broadcaster *Broadcaster, logger zerolog.Logger) *Engine {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Engine{
		cfg:         cfg,
		logger:      logger,
		broadcaster: broadcaster,
		relations:   make(map[uint32]*pglogrepl.RelationMessage),
		typeMap:     pgtype.NewMap(),
	}
}

// Broadcaster returns the fan-out this engine publishes into.
func (e *Engine) Broadcaster() *Broadcaster {
	return e.broadcaster
}

// Start launches the consumer loop.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancel = cancel
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
}

// Stop cancels the consumer and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// run owns the single producer loop: replication messages, heartbeats and
// stream error events all flow from here.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)

	backoff := time.Second
	for {
		err := e.consume(ctx)
		if ctx.Err() != nil {
			return
		}

		// one ERROR event per failure window, not one per retry
		if !e.errorWindow {
			e.errorWindow = true
			e.broadcaster.PublishAll(Event{
				Operation: OpError,
				Timestamp: time.Now(),
				Error:     "replication stream interrupted, reconnecting",
			})
		}
		e.logger.Error().Err(err).Dur("backoff", backoff).Msg("replication stream lost, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// consume attaches to the slot and processes the stream until an error or
// cancellation.
func (e *Engine) consume(ctx context.Context) error {
	conn, err := pgconn.Connect(ctx, replicationURL(e.cfg.DatabaseURL))
	if err != nil {
		return fmt.Errorf("replication connect failed: %w", err)
	}
	defer conn.Close(context.Background())

	sysident, err := pglogrepl.IdentifySystem(ctx, conn)
	if err != nil {
		return fmt.Errorf("IDENTIFY_SYSTEM failed: %w", err)
	}

	startLSN := e.confirmed
	if startLSN == 0 {
		startLSN = sysident.XLogPos
	}

	// the slot persists across restarts; creating it again is fine to fail
	_, err = pglogrepl.CreateReplicationSlot(ctx, conn, e.cfg.SlotName, "pgoutput",
		pglogrepl.CreateReplicationSlotOptions{})
	if err != nil {
		e.logger.Debug().Err(err).Str("slot", e.cfg.SlotName).Msg("replication slot already exists")
	}

	err = pglogrepl.StartReplication(ctx, conn, e.cfg.SlotName, startLSN,
		pglogrepl.StartReplicationOptions{
			PluginArgs: []string{
				"proto_version '1'",
				fmt.Sprintf("publication_names '%s'", e.cfg.PublicationName),
			},
		})
	if err != nil {
		return fmt.Errorf("cannot attach to replication slot %q: %w", e.cfg.SlotName, err)
	}

	e.logger.Info().
		Str("slot", e.cfg.SlotName).
		Str("publication", e.cfg.PublicationName).
		Str("lsn", startLSN.String()).
		Msg("replication stream started")

	// the stream is healthy again; the next failure opens a new window
	e.errorWindow = false

	heartbeat := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	nextStandbyUpdate := time.Now().Add(standbyUpdateInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-heartbeat.C:
			e.broadcaster.PublishAll(Event{
				Schema:    "",
				Operation: OpHeartbeat,
				Timestamp: time.Now(),
				LSN:       e.confirmed.String(),
			})
			continue
		default:
		}

		if time.Now().After(nextStandbyUpdate) {
			if err := pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: e.confirmed,
			}); err != nil {
				return fmt.Errorf("standby status update failed: %w", err)
			}
			nextStandbyUpdate = time.Now().Add(standbyUpdateInterval)
		}

		receiveCtx, cancel := context.WithDeadline(ctx, time.Now().Add(time.Second))
		rawMsg, err := conn.ReceiveMessage(receiveCtx)
		cancel()
		if err != nil {
			if pgconn.Timeout(err) {
				continue
			}
			return fmt.Errorf("receive failed: %w", err)
		}

		switch msg := rawMsg.(type) {
		case *pgproto3.ErrorResponse:
			return fmt.Errorf("replication error response: %s", msg.Message)
		case *pgproto3.CopyData:
			if err := e.handleCopyData(ctx, conn, msg.Data); err != nil {
				return err
			}
		}
	}
}

// replicationURL adds the replication=database parameter the walsender
// protocol requires.
func replicationURL(databaseURL string) string {
	if strings.Contains(databaseURL, "?") {
		return databaseURL + "&replication=database"
	}
	return databaseURL + "?replication=database"
}

func (e *Engine) handleCopyData(ctx context.Context, conn *pgconn.PgConn, data []byte) error {
	switch data[0] {
	case pglogrepl.PrimaryKeepaliveMessageByteID:
		pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(data[1:])
		if err != nil {
			return fmt.Errorf("keepalive parse failed: %w", err)
		}
		if pkm.ReplyRequested {
			if err := pglogrepl.SendStandbyStatusUpdate(ctx, conn, pglogrepl.StandbyStatusUpdate{
				WALWritePosition: e.confirmed,
			}); err != nil {
				return fmt.Errorf("standby status update failed: %w", err)
			}
		}
	case pglogrepl.XLogDataByteID:
		xld, err := pglogrepl.ParseXLogData(data[1:])
		if err != nil {
			return fmt.Errorf("xlog data parse failed: %w", err)
		}
		if err := e.processWALData(xld.WALData, xld.WALStart); err != nil {
			return err
		}
		if xld.WALStart > e.confirmed {
			e.confirmed = xld.WALStart
		}
	}
	return nil
}

func (e *Engine) processWALData(walData []byte, lsn pglogrepl.LSN) error {
	logicalMsg, err := pglogrepl.Parse(walData)
	if err != nil {
		return fmt.Errorf("pgoutput parse failed: %w", err)
	}

	switch msg := logicalMsg.(type) {
	case *pglogrepl.RelationMessage:
		e.relations[msg.RelationID] = msg

	case *pglogrepl.InsertMessage:
		rel, ok := e.relations[msg.RelationID]
		if !ok {
			return fmt.Errorf("insert for unknown relation %d", msg.RelationID)
		}
		e.broadcaster.Publish(Event{
			Table:     rel.RelationName,
			Schema:    rel.Namespace,
			Operation: OpInsert,
			Timestamp: time.Now(),
			LSN:       lsn.String(),
			Data:      e.decodeTuple(rel, msg.Tuple),
		})

	case *pglogrepl.UpdateMessage:
		rel, ok := e.relations[msg.RelationID]
		if !ok {
			return fmt.Errorf("update for unknown relation %d", msg.RelationID)
		}
		e.broadcaster.Publish(Event{
			Table:     rel.RelationName,
			Schema:    rel.Namespace,
			Operation: OpUpdate,
			Timestamp: time.Now(),
			LSN:       lsn.String(),
			Data:      e.decodeTuple(rel, msg.NewTuple),
			Old:       e.decodeTuple(rel, msg.OldTuple),
		})

	case *pglogrepl.DeleteMessage:
		rel, ok := e.relations[msg.RelationID]
		if !ok {
			return fmt.Errorf("delete for unknown relation %d", msg.RelationID)
		}
		e.broadcaster.Publish(Event{
			Table:     rel.RelationName,
			Schema:    rel.Namespace,
			Operation: OpDelete,
			Timestamp: time.Now(),
			LSN:       lsn.String(),
			Old:       e.decodeTuple(rel, msg.OldTuple),
		})
	}

	return nil
}

// decodeTuple converts a pgoutput tuple into a column map using the
// relation's column metadata and the pgtype registry.
func (e *Engine) decodeTuple(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) map[string]interface{} {
	if tuple == nil {
		return nil
	}

	row := make(map[string]interface{}, len(tuple.Columns))
	for i, col := range tuple.Columns {
		if i >= len(rel.Columns) {
			break
		}
		name := rel.Columns[i].Name
		switch col.DataType {
		case 'n': // null
			row[name] = nil
		case 'u': // unchanged TOAST value, not part of the event
			continue
		case 't': // text-format value
			row[name] = e.decodeTextColumn(rel.Columns[i].DataType, col.Data)
		}
	}
	return row
}

func (e *Engine) decodeTextColumn(oid uint32, data []byte) interface{} {
	if dt, ok := e.typeMap.TypeForOID(oid); ok {
		value, err := dt.Codec.DecodeValue(e.typeMap, oid, pgtype.TextFormatCode, data)
		if err == nil {
			return value
		}
	}
	return string(data)
}
