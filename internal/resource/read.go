package resource

import (
	"context"
	"database/sql"
	"errors"
)

// Load returns the current elements of a resource ordered by ident.
// An unknown resource loads as revision 0 with no elements.
func (s *Store) Load(ctx context.Context, resource string) (Snapshot, error) {
	snap := Snapshot{Resource: resource, Elements: []Element{}}

	err := s.db.QueryRowContext(ctx, `
		SELECT revision FROM resources WHERE name = ?
	`, resource).Scan(&snap.Revision)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, nil
	}
	if err != nil {
		return Snapshot{}, storageError("load", resource, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ident, value FROM elements
		WHERE resource = ?
		ORDER BY ident COLLATE BINARY ASC
	`, resource)
	if err != nil {
		return Snapshot{}, storageError("load", resource, err)
	}
	defer rows.Close()

	for rows.Next() {
		var ident, data string
		if err := rows.Scan(&ident, &data); err != nil {
			return Snapshot{}, storageError("load", resource, err)
		}
		v, err := unmarshalElementValue(data)
		if err != nil {
			return Snapshot{}, storageError("load", resource, err)
		}
		snap.Elements = append(snap.Elements, Element{Ident: ident, Value: v})
	}
	if err := rows.Err(); err != nil {
		return Snapshot{}, storageError("load", resource, err)
	}
	return snap, nil
}

// Changes returns the writes applied to a resource after revision since,
// oldest first.
func (s *Store) Changes(ctx context.Context, resource string, since int64) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT revision, ident, value, client_id FROM element_log
		WHERE resource = ? AND revision > ?
		ORDER BY revision ASC, ident COLLATE BINARY ASC
	`, resource, since)
	if err != nil {
		return nil, storageError("changes", resource, err)
	}
	defer rows.Close()

	updates := []Update{}
	for rows.Next() {
		var (
			revision int64
			ident    string
			data     sql.NullString
			clientID string
		)
		if err := rows.Scan(&revision, &ident, &data, &clientID); err != nil {
			return nil, storageError("changes", resource, err)
		}
		v, err := unmarshalLogValue(data)
		if err != nil {
			return nil, storageError("changes", resource, err)
		}
		if n := len(updates); n == 0 || updates[n-1].Revision != revision {
			updates = append(updates, Update{Resource: resource, Revision: revision, ClientID: clientID})
		}
		last := &updates[len(updates)-1]
		last.Changes = append(last.Changes, Element{Ident: ident, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("changes", resource, err)
	}
	return updates, nil
}

// ResourceInfo names a written resource and its current revision.
type ResourceInfo struct {
	Name     string
	Revision int64
}

// Resources lists all written resources ordered by name.
func (s *Store) Resources(ctx context.Context) ([]ResourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, revision FROM resources ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, storageError("resources", "", err)
	}
	defer rows.Close()

	infos := []ResourceInfo{}
	for rows.Next() {
		var info ResourceInfo
		if err := rows.Scan(&info.Name, &info.Revision); err != nil {
			return nil, storageError("resources", "", err)
		}
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("resources", "", err)
	}
	return infos, nil
}
