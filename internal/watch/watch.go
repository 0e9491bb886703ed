// Package watch streams inserts on the snapshot table via Postgres logical
// replication so the daemon can refit the surrogate on fresh data.
package watch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pglogrepl"
	"github.com/jackc/pgproto3/v2"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yourusername/snapshot-rom/internal/config"
)

// Event signals that a new snapshot row landed in the watched table.
type Event struct {
	Table string
	ID    string
}

type Watcher struct {
	config    config.WatchConfig
	dbConfig  config.DatabaseConfig
	table     string
	eventChan chan Event
	stopChan  chan struct{}
	conn      *pgconn.PgConn
	relations map[uint32]*pglogrepl.RelationMessage
	walPos    pglogrepl.LSN
}

// NewWatcher watches inserts on the given table. The table name is matched
// against the relation name reported by the replication stream, with or
// without schema qualification.
func NewWatcher(cfg config.WatchConfig, dbCfg config.DatabaseConfig, table string) *Watcher {
	return &Watcher{
		config:    cfg,
		dbConfig:  dbCfg,
		table:     table,
		eventChan: make(chan Event, 256),
		stopChan:  make(chan struct{}),
		relations: make(map[uint32]*pglogrepl.RelationMessage),
	}
}

func (w *Watcher) Start() error {
	connConfig, err := pgconn.ParseConfig(fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?replication=database",
		w.dbConfig.User, w.dbConfig.Password, w.dbConfig.Host, w.dbConfig.Port, w.dbConfig.Database,
	))
	if err != nil {
		return fmt.Errorf("failed to parse replication config: %w", err)
	}

	conn, err := pgconn.ConnectConfig(context.Background(), connConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	w.conn = conn

	// Create the replication slot if it doesn't exist yet.
	_, err = pglogrepl.CreateReplicationSlot(context.Background(), w.conn, w.config.SlotName, "pgoutput", pglogrepl.CreateReplicationSlotOptions{Temporary: false})
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") && !strings.Contains(err.Error(), "SQLSTATE 42710") {
			log.Printf("Warning: failed to create replication slot: %v", err)
		}
	}

	log.Printf("Watching snapshot inserts on slot %s", w.config.SlotName)
	err = pglogrepl.StartReplication(context.Background(), w.conn, w.config.SlotName, 0, pglogrepl.StartReplicationOptions{
		PluginArgs: []string{"proto_version '1'", fmt.Sprintf("publication_names '%s'", w.config.Publication)},
	})
	if err != nil {
		return fmt.Errorf("failed to start replication: %w", err)
	}

	go w.listen()
	return nil
}

func (w *Watcher) listen() {
	// The listen goroutine owns eventChan: closing it here, after the last
	// send, keeps Stop from racing an in-flight emit.
	defer close(w.eventChan)
	defer func() {
		if w.conn != nil {
			w.conn.Close(context.Background())
		}
	}()

	standbyMessageTimeout := time.Second * 10
	nextStandbyMessageDeadline := time.Now().Add(standbyMessageTimeout)

	for {
		select {
		case <-w.stopChan:
			return
		default:
			if time.Now().After(nextStandbyMessageDeadline) {
				err := pglogrepl.SendStandbyStatusUpdate(context.Background(), w.conn, pglogrepl.StandbyStatusUpdate{WALWritePosition: w.walPos})
				if err != nil {
					log.Printf("Failed to send standby status update: %v", err)
				}
				nextStandbyMessageDeadline = time.Now().Add(standbyMessageTimeout)
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			msg, err := w.conn.ReceiveMessage(ctx)
			cancel()

			if err != nil {
				if pgconn.Timeout(err) {
					continue
				}
				select {
				case <-w.stopChan:
					return
				default:
					log.Printf("ReceiveMessage failed: %v", err)
					time.Sleep(5 * time.Second)
					return
				}
			}

			switch msg := msg.(type) {
			case *pgproto3.CopyData:
				switch msg.Data[0] {
				case pglogrepl.PrimaryKeepaliveMessageByteID:
					pkm, err := pglogrepl.ParsePrimaryKeepaliveMessage(msg.Data[1:])
					if err != nil {
						log.Printf("ParsePrimaryKeepaliveMessage failed: %v", err)
						continue
					}
					if pkm.ReplyRequested {
						nextStandbyMessageDeadline = time.Time{}
					}

				case pglogrepl.XLogDataByteID:
					xld, err := pglogrepl.ParseXLogData(msg.Data[1:])
					if err != nil {
						log.Printf("ParseXLogData failed: %v", err)
						continue
					}

					w.processLogicalMsg(xld.WALData)
					w.walPos = xld.WALStart + pglogrepl.LSN(len(xld.WALData))
				}
			default:
				if msg != nil {
					log.Printf("Received unexpected message: %T", msg)
				}
			}
		}
	}
}

func (w *Watcher) processLogicalMsg(data []byte) {
	logicalMsg, err := pglogrepl.Parse(data)
	if err != nil {
		log.Printf("Parse logical message failed: %v", err)
		return
	}

	switch logicalMsg := logicalMsg.(type) {
	case *pglogrepl.RelationMessage:
		w.relations[logicalMsg.RelationID] = logicalMsg

	case *pglogrepl.InsertMessage:
		rel, ok := w.relations[logicalMsg.RelationID]
		if !ok {
			log.Printf("Unknown relation ID: %d", logicalMsg.RelationID)
			return
		}
		if !w.matchesTable(rel) {
			return
		}
		w.emit(Event{
			Table: rel.Namespace + "." + rel.RelationName,
			ID:    w.extractID(rel, logicalMsg.Tuple),
		})

		// Updates and deletes to historical snapshots are not expected;
		// the training set is append-only. Ignore anything else.
	}
}

func (w *Watcher) matchesTable(rel *pglogrepl.RelationMessage) bool {
	return w.table == rel.RelationName || w.table == rel.Namespace+"."+rel.RelationName
}

func (w *Watcher) extractID(rel *pglogrepl.RelationMessage, tuple *pglogrepl.TupleData) string {
	if tuple == nil {
		return ""
	}
	for idx, col := range tuple.Columns {
		if idx >= len(rel.Columns) {
			break
		}
		if rel.Columns[idx].Name == "id" && col.DataType == 't' {
			return string(col.Data)
		}
	}
	return ""
}

// emit delivers an event, giving up once the watcher is stopping.
func (w *Watcher) emit(ev Event) {
	select {
	case w.eventChan <- ev:
	case <-w.stopChan:
	}
}

func (w *Watcher) Stop() {
	close(w.stopChan)
}

func (w *Watcher) Events() <-chan Event {
	return w.eventChan
}
