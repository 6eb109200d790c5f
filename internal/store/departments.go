package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"jobvyne-crawler/internal/domain"
)

var ErrEmptyName = errors.New("store: empty name")

type DepartmentStore struct {
	db *sql.DB
}

func NewDepartmentStore(db *sql.DB) *DepartmentStore { return &DepartmentStore{db: db} }

// GetOrCreate returns the department whose name matches case-insensitively,
// creating it on first use. The first spelling seen is the one stored.
func (s *DepartmentStore) GetOrCreate(ctx context.Context, name string) (domain.DepartmentID, error) {
	name = normalizeName(name)
	if name == "" {
		return 0, ErrEmptyName
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO departments(name) VALUES(?) ON CONFLICT(name) DO NOTHING;`, name); err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT id FROM departments WHERE name = ? LIMIT 1;`, name).Scan(&id); err != nil {
		return 0, err
	}
	return domain.DepartmentID(id), nil
}

// Location is one row of the resolver's location table.
type Location struct {
	ID     domain.LocationID
	Key    string
	Name   string
	Remote bool
}

type LocationStore struct {
	db *sql.DB
}

func NewLocationStore(db *sql.DB) *LocationStore { return &LocationStore{db: db} }

// FindLocation looks a normalized key up; found is false when absent.
func (s *LocationStore) FindLocation(ctx context.Context, key string) (domain.LocationID, bool, error) {
	key = locationKey(key)
	if key == "" {
		return 0, false, nil
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM locations WHERE key = ? LIMIT 1;`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return domain.LocationID(id), true, nil
}

// UpsertLocation stores a location under its normalized key and returns its ID.
func (s *LocationStore) UpsertLocation(ctx context.Context, name string, remote bool) (domain.LocationID, error) {
	name = normalizeName(name)
	key := locationKey(name)
	if key == "" {
		return 0, ErrEmptyName
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO locations(key, name, remote, created_at)
VALUES(?,?,?,?)
ON CONFLICT(key) DO NOTHING;
`, key, name, boolInt(remote), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, err
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM locations WHERE key = ? LIMIT 1;`, key).Scan(&id); err != nil {
		return 0, err
	}
	return domain.LocationID(id), nil
}

func (s *LocationStore) ListLocations(ctx context.Context) ([]Location, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, key, name, remote FROM locations ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Location
	for rows.Next() {
		var l Location
		var remote int
		if err := rows.Scan(&l.ID, &l.Key, &l.Name, &remote); err != nil {
			return nil, err
		}
		l.Remote = remote != 0
		out = append(out, l)
	}
	return out, rows.Err()
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func locationKey(s string) string {
	return strings.ToLower(normalizeName(s))
}
