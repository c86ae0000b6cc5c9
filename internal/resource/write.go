package resource

import (
	"context"
	"fmt"
)

// Backend is the storage a Manager reads and writes through.
// *Store implements it.
type Backend interface {
	Load(ctx context.Context, resource string) (Snapshot, error)
	Write(ctx context.Context, resource, clientID string, changes []Element) (int64, error)
}

var _ Backend = (*Store)(nil)

// Write applies changes to a resource in one transaction and returns the
// new revision. Each call bumps the revision by exactly one. Elements
// with a nil Value are deleted; deleting an absent element is not an
// error but is still logged.
func (s *Store) Write(ctx context.Context, resource, clientID string, changes []Element) (int64, error) {
	if err := validateChanges(resource, changes); err != nil {
		return 0, err
	}

	// Marshal before opening the transaction so bad values never hold the
	// write lock.
	values := make([]string, len(changes))
	for i, c := range changes {
		if c.Deleted() {
			continue
		}
		v, err := marshalElementValue(c.Value)
		if err != nil {
			return 0, &Error{Code: ErrCodeInvalidWrite, Op: "write", Resource: resource,
				Message: fmt.Sprintf("element %q: %v", c.Ident, err), Err: err}
		}
		values[i] = v
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, storageError("write", resource, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO resources (name, revision) VALUES (?, 0)
		ON CONFLICT(name) DO NOTHING
	`, resource); err != nil {
		return 0, storageError("write", resource, err)
	}

	var revision int64
	if err := tx.QueryRowContext(ctx, `
		UPDATE resources SET revision = revision + 1
		WHERE name = ?
		RETURNING revision
	`, resource).Scan(&revision); err != nil {
		return 0, storageError("write", resource, err)
	}

	for i, c := range changes {
		if c.Deleted() {
			_, err = tx.ExecContext(ctx, `
				DELETE FROM elements WHERE resource = ? AND ident = ?
			`, resource, c.Ident)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO elements (resource, ident, value, revision, client_id)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(resource, ident) DO UPDATE SET
					value = excluded.value,
					revision = excluded.revision,
					client_id = excluded.client_id
			`, resource, c.Ident, values[i], revision, clientID)
		}
		if err != nil {
			return 0, storageError("write", resource, err)
		}

		logValue, err := marshalLogValue(c.Value)
		if err != nil {
			return 0, storageError("write", resource, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO element_log (resource, revision, ident, value, client_id)
			VALUES (?, ?, ?, ?, ?)
		`, resource, revision, c.Ident, logValue, clientID); err != nil {
			return 0, storageError("write", resource, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageError("write", resource, err)
	}
	return revision, nil
}

func storageError(op, resource string, err error) error {
	return &Error{Code: ErrCodeStorage, Op: op, Resource: resource, Err: err}
}
