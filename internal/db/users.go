package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Dicklesworthstone/approveflow/internal/core"
)

// SeedUsers replaces the directory with seeds. Superiors are referenced by
// phone and may appear in any order within seeds.
func (db *DB) SeedUsers(ctx context.Context, seeds []UserSeed) error {
	byPhone := make(map[string]UserSeed, len(seeds))
	for _, s := range seeds {
		if _, dup := byPhone[s.Phone]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicatePhone, s.Phone)
		}
		byPhone[s.Phone] = s
	}
	for _, s := range seeds {
		for _, sup := range s.Superiors {
			if _, ok := byPhone[sup]; !ok {
				return fmt.Errorf("user %s: unknown superior phone %s", s.Phone, sup)
			}
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_superiors`); err != nil {
			return fmt.Errorf("clearing superiors: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
			return fmt.Errorf("clearing users: %w", err)
		}
		for _, s := range seeds {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users (id, name, phone, authority, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, s.ID, s.Name, s.Phone, s.Authority, now); err != nil {
				if isUniqueConstraintError(err) {
					return fmt.Errorf("%w: %d", ErrDuplicateUser, s.ID)
				}
				return fmt.Errorf("inserting user %s: %w", s.Phone, err)
			}
		}
		for _, s := range seeds {
			for pos, sup := range s.Superiors {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO user_superiors (user_id, superior_id, position)
					VALUES (?, ?, ?)
				`, s.ID, byPhone[sup].ID, pos); err != nil {
					return fmt.Errorf("linking %s to superior %s: %w", s.Phone, sup, err)
				}
			}
		}
		return nil
	})
}

// FindUsersByAuthority returns every user tagged with role, ordered by id,
// with superiors linked transitively.
func (db *DB) FindUsersByAuthority(ctx context.Context, role string) ([]*core.User, error) {
	graph, order, err := db.loadUserGraph(ctx)
	if err != nil {
		return nil, err
	}
	var users []*core.User
	for _, id := range order {
		if u := graph[id]; u.Authority == role {
			users = append(users, u)
		}
	}
	return users, nil
}

// FindUser returns the first user tagged with role.
// Returns ErrUserNotFound if none exists.
func (db *DB) FindUser(ctx context.Context, role string) (*core.User, error) {
	users, err := db.FindUsersByAuthority(ctx, role)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: authority %q", ErrUserNotFound, role)
	}
	return users[0], nil
}

// FindUserByPhone returns the user with the given phone.
func (db *DB) FindUserByPhone(ctx context.Context, phone string) (*core.User, error) {
	graph, order, err := db.loadUserGraph(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if graph[id].Phone == phone {
			return graph[id], nil
		}
	}
	return nil, fmt.Errorf("%w: phone %q", ErrUserNotFound, phone)
}

// ListUsers returns every user ordered by id.
func (db *DB) ListUsers(ctx context.Context) ([]*core.User, error) {
	graph, order, err := db.loadUserGraph(ctx)
	if err != nil {
		return nil, err
	}
	users := make([]*core.User, 0, len(order))
	for _, id := range order {
		users = append(users, graph[id])
	}
	return users, nil
}

// loadUserGraph reads all users and links superiors. The directory is
// small, so the whole graph is read for every lookup.
func (db *DB) loadUserGraph(ctx context.Context) (map[int64]*core.User, []int64, error) {
	rows, err := db.Query(ctx, `SELECT id, name, phone, authority FROM users ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying users: %w", err)
	}
	graph := make(map[int64]*core.User)
	var order []int64
	for rows.Next() {
		u := &core.User{}
		if err := rows.Scan(&u.ID, &u.Name, &u.Phone, &u.Authority); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("scanning user row: %w", err)
		}
		graph[u.ID] = u
		order = append(order, u.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, fmt.Errorf("iterating users: %w", err)
	}
	rows.Close()

	links, err := db.Query(ctx, `SELECT user_id, superior_id FROM user_superiors ORDER BY user_id, position`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying superiors: %w", err)
	}
	defer links.Close()
	for links.Next() {
		var userID, superiorID int64
		if err := links.Scan(&userID, &superiorID); err != nil {
			return nil, nil, fmt.Errorf("scanning superior row: %w", err)
		}
		u, sup := graph[userID], graph[superiorID]
		if u == nil || sup == nil {
			continue
		}
		u.Superiors = append(u.Superiors, sup)
	}
	if err := links.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating superiors: %w", err)
	}
	return graph, order, nil
}

var _ core.Directory = (*DB)(nil)
