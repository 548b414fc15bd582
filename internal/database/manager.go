package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	dbconfig "pulseroom/pkg/database"
	"pulseroom/pkg/interfaces"
	"pulseroom/pkg/types"
)

// Manager implements interfaces.Store on SQLite or Postgres.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	dialect      dbconfig.Dialect
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the configured database and starts the write loop.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	dialect, err := dbconfig.DialectFor(config.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(config.Driver, config.DataSourceName())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if dialect == dbconfig.SQLite {
		if err := applySQLiteOptimizations(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
		}
	}

	manager := &Manager{
		db:           db,
		config:       config,
		dialect:      dialect,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}

	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine.
// Writes are attempted once; a failure is reported to the caller and logged.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.shutdown:
			m.drainWrites()
			return
		default:
		}

		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed: %v", err)
			}
			op.result <- err

		case <-m.shutdown:
			m.drainWrites()
			return
		}
	}
}

// drainWrites fails every queued write so no caller waits on a loop that
// has stopped.
func (m *Manager) drainWrites() {
	log.Println("Database write loop shutting down")
	for {
		select {
		case op := <-m.writeChannel:
			op.result <- ErrManagerClosed
		default:
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.shutdown:
		// The loop may have finished this write just before stopping.
		select {
		case err := <-result:
			return err
		default:
		}
		m.wg.Wait()
		select {
		case err := <-result:
			return err
		default:
			return ErrManagerClosed
		}
	}
}

func (m *Manager) q(query string) string {
	return m.dialect.Rebind(query)
}

// FindRoomByCode returns the room holding code, preferring the active one
// when older inactive rooms reused it.
func (m *Manager) FindRoomByCode(ctx context.Context, code string) (*types.Room, error) {
	query := m.q(`
		SELECT id, code, teacher_id, is_active, start_time, end_time, name, description, no_participants
		FROM rooms
		WHERE code = ?
		ORDER BY is_active DESC, id DESC
		LIMIT 1
	`)
	return m.scanRoom(m.db.QueryRowContext(ctx, query, code))
}

// FindRoomByID returns the room with the given id.
func (m *Manager) FindRoomByID(ctx context.Context, id int64) (*types.Room, error) {
	query := m.q(`
		SELECT id, code, teacher_id, is_active, start_time, end_time, name, description, no_participants
		FROM rooms
		WHERE id = ?
	`)
	return m.scanRoom(m.db.QueryRowContext(ctx, query, id))
}

func (m *Manager) scanRoom(row *sql.Row) (*types.Room, error) {
	var room types.Room
	var endTime sql.NullTime

	err := row.Scan(
		&room.ID,
		&room.Code,
		&room.TeacherID,
		&room.IsActive,
		&room.StartTime,
		&endTime,
		&room.Name,
		&room.Description,
		&room.NoParticipants,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to query room: %w", err)
	}

	if endTime.Valid {
		t := endTime.Time.UTC()
		room.EndTime = &t
	}
	room.StartTime = room.StartTime.UTC()

	return &room, nil
}

// MarkInactive ends the room. Only the first call for a room changes it.
func (m *Manager) MarkInactive(ctx context.Context, id int64, endTime time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx,
			m.q(`UPDATE rooms SET is_active = ?, end_time = ? WHERE id = ? AND is_active = ?`),
			false, endTime.UTC(), id, true)
		if err != nil {
			return fmt.Errorf("failed to mark room inactive: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows: %w", err)
		}
		if affected > 0 {
			return nil
		}

		var exists int
		err = db.QueryRowContext(ctx, m.q(`SELECT COUNT(*) FROM rooms WHERE id = ?`), id).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check room existence: %w", err)
		}
		if exists == 0 {
			return interfaces.ErrRoomNotFound
		}
		return interfaces.ErrRoomAlreadyEnded
	})
}

// OpenMembership inserts an open row for the pair. A concurrent open row for
// the same pair wins and this insert becomes a no-op.
func (m *Manager) OpenMembership(ctx context.Context, sessionID, roomID int64, joinAt time.Time) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO room_members (session_id, room_id, join_at)
			VALUES (?, ?, ?)
			ON CONFLICT (session_id, room_id) WHERE leaved_at IS NULL DO NOTHING
		`), sessionID, roomID, joinAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to open membership: %w", err)
		}
		return nil
	})
}

// CloseOpenMembership stamps leaved_at on the pair's open rows.
func (m *Manager) CloseOpenMembership(ctx context.Context, sessionID, roomID int64, leftAt time.Time) (int, error) {
	var closed int64
	err := m.executeWrite(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, m.q(`
			UPDATE room_members
			SET leaved_at = ?
			WHERE session_id = ? AND room_id = ? AND leaved_at IS NULL
		`), leftAt.UTC(), sessionID, roomID)
		if err != nil {
			return fmt.Errorf("failed to close membership: %w", err)
		}
		closed, err = res.RowsAffected()
		return err
	})
	return int(closed), err
}

// CountOpen returns how many memberships in the room are still open.
func (m *Manager) CountOpen(ctx context.Context, roomID int64) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		m.q(`SELECT COUNT(*) FROM room_members WHERE room_id = ? AND leaved_at IS NULL`),
		roomID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open memberships: %w", err)
	}
	return count, nil
}

// ListAll returns every membership row of the room with the member's nickname.
func (m *Manager) ListAll(ctx context.Context, roomID int64) ([]*types.Membership, error) {
	query := m.q(`
		SELECT rm.session_id, rm.room_id, s.nickname, rm.join_at, rm.leaved_at
		FROM room_members rm
		JOIN sessions s ON s.id = rm.session_id
		WHERE rm.room_id = ?
		ORDER BY rm.join_at ASC, rm.id ASC
	`)

	rows, err := m.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query memberships: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memberships []*types.Membership
	for rows.Next() {
		var membership types.Membership
		var leavedAt sql.NullTime

		if err := rows.Scan(
			&membership.SessionID,
			&membership.RoomID,
			&membership.Nickname,
			&membership.JoinAt,
			&leavedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan membership row: %w", err)
		}

		membership.JoinAt = membership.JoinAt.UTC()
		if leavedAt.Valid {
			t := leavedAt.Time.UTC()
			membership.LeavedAt = &t
		}
		memberships = append(memberships, &membership)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership rows: %w", err)
	}

	return memberships, nil
}

// RecordFeedback persists one reaction at its moment offset.
func (m *Manager) RecordFeedback(ctx context.Context, sessionID, roomID int64, kind types.ReactionKind, momentSeconds int, at time.Time) error {
	code := kind.Code()
	if code == 0 {
		return types.ErrUnknownReaction
	}
	if momentSeconds < 0 {
		momentSeconds = 0
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, m.q(`
			INSERT INTO room_feedback (session_id, room_id, kind, moment_of_feedback, feedback_on)
			VALUES (?, ?, ?, ?, ?)
		`), sessionID, roomID, code, momentSeconds, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert feedback: %w", err)
		}
		return nil
	})
}

// ListFeedback returns the room's reactions ordered by moment.
func (m *Manager) ListFeedback(ctx context.Context, roomID int64) ([]*types.Feedback, error) {
	query := m.q(`
		SELECT session_id, room_id, kind, moment_of_feedback, feedback_on
		FROM room_feedback
		WHERE room_id = ?
		ORDER BY moment_of_feedback ASC, id ASC
	`)

	rows, err := m.db.QueryContext(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feedback []*types.Feedback
	for rows.Next() {
		var item types.Feedback
		var code int

		if err := rows.Scan(&item.SessionID, &item.RoomID, &code, &item.MomentOfFeedback, &item.FeedbackOn); err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}

		kind, ok := types.ReactionFromCode(code)
		if !ok {
			log.Printf("Skipping feedback row with unknown kind %d in room %d", code, roomID)
			continue
		}
		item.Kind = kind
		item.FeedbackOn = item.FeedbackOn.UTC()
		feedback = append(feedback, &item)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feedback rows: %w", err)
	}

	return feedback, nil
}

// CreateIdentity inserts a teacher or student session row.
func (m *Manager) CreateIdentity(ctx context.Context, nickname, kind string, at time.Time) (*types.Identity, error) {
	identity := &types.Identity{Nickname: nickname, Kind: kind, CreatedAt: at.UTC()}

	err := m.executeWrite(ctx, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, m.q(`
			INSERT INTO sessions (nickname, kind, created_at)
			VALUES (?, ?, ?)
			RETURNING id
		`), nickname, kind, identity.CreatedAt).Scan(&identity.ID)
		if err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// CreateRoom inserts room and sets room.ID.
func (m *Manager) CreateRoom(ctx context.Context, room *types.Room) error {
	return m.executeWrite(ctx, func(db *sql.DB) error {
		err := db.QueryRowContext(ctx, m.q(`
			INSERT INTO rooms (code, teacher_id, is_active, start_time, name, description, no_participants)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`),
			room.Code,
			room.TeacherID,
			room.IsActive,
			room.StartTime.UTC(),
			room.Name,
			room.Description,
			room.NoParticipants,
		).Scan(&room.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return interfaces.ErrRoomCodeInUse
			}
			return fmt.Errorf("failed to insert room: %w", err)
		}
		return nil
	})
}

// isUniqueViolation recognizes unique-constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}

	return nil
}

// GetDB returns the underlying database connection for migrations
func (m *Manager) GetDB() *sql.DB {
	return m.db
}

// Dialect returns the SQL dialect the manager speaks.
func (m *Manager) Dialect() dbconfig.Dialect {
	return m.dialect
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// applySQLiteOptimizations applies performance optimizations
func applySQLiteOptimizations(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}

	return nil
}
