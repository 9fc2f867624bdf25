package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devrev/tempvoice/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const roomColumns = `room_id, tenant_id, owner_id, name, locked, user_limit,
		       state, created_at, last_active_at, scheduled_eviction_at`

// PostgresRoomDirectory implements RoomDirectory for PostgreSQL
type PostgresRoomDirectory struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRoomDirectory creates a room directory on an open pool
func NewPostgresRoomDirectory(pool *pgxpool.Pool, logger *zap.Logger) *PostgresRoomDirectory {
	return &PostgresRoomDirectory{
		pool:   pool,
		logger: logger,
	}
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	var room model.Room
	var state string
	err := row.Scan(
		&room.ID,
		&room.TenantID,
		&room.OwnerID,
		&room.Name,
		&room.Locked,
		&room.UserLimit,
		&state,
		&room.CreatedAt,
		&room.LastActiveAt,
		&room.ScheduledEvictionAt,
	)
	if err != nil {
		return nil, err
	}
	room.State = model.RoomState(state)
	return &room, nil
}

// Get retrieves a room by ID
func (s *PostgresRoomDirectory) Get(ctx context.Context, roomID string) (*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE room_id = $1`

	room, err := scanRoom(s.pool.QueryRow(ctx, query, roomID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// FindRecent returns the owner's newest room created at or after since
func (s *PostgresRoomDirectory) FindRecent(ctx context.Context, tenantID, ownerID string, since time.Time) (*model.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE tenant_id = $1 AND owner_id = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`

	room, err := scanRoom(s.pool.QueryRow(ctx, query, tenantID, ownerID, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find recent room: %w", err)
	}
	return room, nil
}

// Count returns the number of live room records for a tenant
func (s *PostgresRoomDirectory) Count(ctx context.Context, tenantID string) (int, error) {
	query := `SELECT COUNT(*) FROM rooms WHERE tenant_id = $1 AND state != 'deleted'`

	var count int
	if err := s.pool.QueryRow(ctx, query, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rooms: %w", err)
	}
	return count, nil
}

// Create inserts a new room record
func (s *PostgresRoomDirectory) Create(ctx context.Context, room *model.Room) (*model.Room, error) {
	out := *room
	if out.State == "" {
		out.State = model.RoomActive
	}

	query := `
		INSERT INTO rooms (
			room_id, tenant_id, owner_id, name, locked, user_limit,
			state, created_at, last_active_at, scheduled_eviction_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		out.ID,
		out.TenantID,
		out.OwnerID,
		out.Name,
		out.Locked,
		out.UserLimit,
		string(out.State),
		out.CreatedAt,
		out.LastActiveAt,
		out.ScheduledEvictionAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return &out, nil
}

// Update applies a partial update to a room record
func (s *PostgresRoomDirectory) Update(ctx context.Context, roomID string, patch model.RoomPatch) error {
	sets := make([]string, 0, 7)
	args := []interface{}{roomID}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.OwnerID != nil {
		add("owner_id", *patch.OwnerID)
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Locked != nil {
		add("locked", *patch.Locked)
	}
	if patch.UserLimit != nil {
		add("user_limit", *patch.UserLimit)
	}
	if patch.LastActiveAt != nil {
		add("last_active_at", *patch.LastActiveAt)
	}
	if patch.State != nil {
		add("state", string(*patch.State))
		add("scheduled_eviction_at", patch.ScheduledEvictionAt)
	}

	if len(sets) == 0 {
		_, err := s.Get(ctx, roomID)
		return err
	}

	query := fmt.Sprintf(`UPDATE rooms SET %s WHERE room_id = $1`, strings.Join(sets, ", "))
	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a room record
func (s *PostgresRoomDirectory) Delete(ctx context.Context, roomID string) error {
	query := `DELETE FROM rooms WHERE room_id = $1`
	result, err := s.pool.Exec(ctx, query, roomID)
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns a tenant's rooms, oldest first
func (s *PostgresRoomDirectory) List(ctx context.Context, tenantID string) ([]*model.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		WHERE tenant_id = $1
		ORDER BY created_at, room_id
	`
	return s.query(ctx, query, tenantID)
}

// ListAll returns every room record
func (s *PostgresRoomDirectory) ListAll(ctx context.Context) ([]*model.Room, error) {
	query := `
		SELECT ` + roomColumns + `
		FROM rooms
		ORDER BY created_at, room_id
	`
	return s.query(ctx, query)
}

func (s *PostgresRoomDirectory) query(ctx context.Context, query string, args ...interface{}) ([]*model.Room, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*model.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

// Ping checks the database connection
func (s *PostgresRoomDirectory) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is closed by whoever opened it
func (s *PostgresRoomDirectory) Close() {}
