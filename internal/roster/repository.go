package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/pulse-core/internal/telemetry"
)

// Repository defines the persistence operations for users and device links.
type Repository interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	Link(ctx context.Context, deviceID uint32, userID string) (*DeviceLink, error)
	Unlink(ctx context.Context, deviceID uint32) error
	ListLinks(ctx context.Context) ([]LinkedUser, error)
	ClearLinks(ctx context.Context) error
	FindUserForDevice(ctx context.Context, deviceID uint32) (*telemetry.Identity, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewRepository creates a SQLite-backed roster repository.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const userColumns = "id, name, gender, birth_date, weight, height, created_at, updated_at"

// CreateUser validates and inserts a user. The ID is generated if empty.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u *User) error {
	u.Name = strings.TrimSpace(u.Name)
	if err := ValidateUser(u, time.Now()); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	u.CreatedAt = parseStamp(now)
	u.UpdatedAt = u.CreatedAt
	u.BirthDate = truncateDate(u.BirthDate)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, string(u.Gender), u.BirthDate.Format(dateLayout),
		u.Weight, u.Height, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: creating user: %w", telemetry.ErrStore, err)
	}
	return nil
}

// GetUser returns a user by id, or ErrUserNotFound.
func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// ListUsers returns all users ordered by name.
func (r *SQLiteRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing users: %w", telemetry.ErrStore, err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating users: %w", telemetry.ErrStore, err)
	}
	return users, nil
}

// Link binds deviceID to userID, replacing any previous link for the device.
// It returns ErrUserNotFound if the user does not exist.
func (r *SQLiteRepository) Link(ctx context.Context, deviceID uint32, userID string) (*DeviceLink, error) {
	if _, err := r.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO device_links (device_id, user_id, linked_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET user_id = excluded.user_id, updated_at = excluded.updated_at`,
		int64(deviceID), userID, now, now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: linking device %d: %w", telemetry.ErrStore, deviceID, err)
	}

	return r.getLink(ctx, deviceID)
}

// Unlink removes the link for deviceID, or returns ErrLinkNotFound.
func (r *SQLiteRepository) Unlink(ctx context.Context, deviceID uint32) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM device_links WHERE device_id = ?", int64(deviceID))
	if err != nil {
		return fmt.Errorf("%w: unlinking device %d: %w", telemetry.ErrStore, deviceID, err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// ListLinks returns every link joined with its user, ordered by device id.
func (r *SQLiteRepository) ListLinks(ctx context.Context) ([]LinkedUser, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT l.device_id, l.user_id, l.linked_at, l.updated_at,
		       u.id, u.name, u.gender, u.birth_date, u.weight, u.height, u.created_at, u.updated_at
		FROM device_links l
		JOIN users u ON u.id = l.user_id
		ORDER BY l.device_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing links: %w", telemetry.ErrStore, err)
	}
	defer rows.Close()

	linked := []LinkedUser{}
	for rows.Next() {
		var lu LinkedUser
		var deviceID int64
		var linkedAt, linkUpdated, gender, birth, created, updated string
		if err := rows.Scan(&deviceID, &lu.Link.UserID, &linkedAt, &linkUpdated,
			&lu.User.ID, &lu.User.Name, &gender, &birth, &lu.User.Weight, &lu.User.Height,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scanning link: %w", telemetry.ErrStore, err)
		}
		lu.Link.DeviceID = uint32(deviceID) // #nosec G115 -- stored from uint32
		lu.Link.LinkedAt = parseStamp(linkedAt)
		lu.Link.UpdatedAt = parseStamp(linkUpdated)
		lu.User.Gender = telemetry.Gender(gender)
		lu.User.BirthDate = parseDate(birth)
		lu.User.CreatedAt = parseStamp(created)
		lu.User.UpdatedAt = parseStamp(updated)
		linked = append(linked, lu)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating links: %w", telemetry.ErrStore, err)
	}
	return linked, nil
}

// ClearLinks removes every device link.
func (r *SQLiteRepository) ClearLinks(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM device_links"); err != nil {
		return fmt.Errorf("%w: clearing links: %w", telemetry.ErrStore, err)
	}
	return nil
}

// FindUserForDevice returns the identity linked to deviceID.
// It returns (nil, nil) when the device is not linked.
func (r *SQLiteRepository) FindUserForDevice(ctx context.Context, deviceID uint32) (*telemetry.Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.name, u.gender, u.birth_date, u.weight, u.height, u.created_at, u.updated_at
		FROM device_links l
		JOIN users u ON u.id = l.user_id
		WHERE l.device_id = ?`, int64(deviceID))

	u, err := scanUser(row)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

func (r *SQLiteRepository) getLink(ctx context.Context, deviceID uint32) (*DeviceLink, error) {
	var l DeviceLink
	var linkedAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT user_id, linked_at, updated_at FROM device_links WHERE device_id = ?", int64(deviceID),
	).Scan(&l.UserID, &linkedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("%w: reading link: %w", telemetry.ErrStore, err)
	}
	l.DeviceID = deviceID
	l.LinkedAt = parseStamp(linkedAt)
	l.UpdatedAt = parseStamp(updatedAt)
	return &l, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var gender, birth, createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Name, &gender, &birth, &u.Weight, &u.Height, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: scanning user: %w", telemetry.ErrStore, err)
	}

	u.Gender = telemetry.Gender(gender)
	u.BirthDate = parseDate(birth)
	u.CreatedAt = parseStamp(createdAt)
	u.UpdatedAt = parseStamp(updatedAt)
	return &u, nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isForeignKeyViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// parseStamp and parseDate read values this package wrote itself.
func parseStamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s) //nolint:errcheck // format is controlled
	return t
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(dateLayout, s) //nolint:errcheck // format is controlled
	return t
}
