// Package contacts reads CRM contacts and their primary email address.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
)

// Contact is the subset of a contact record used by process handlers.
type Contact struct {
	ID        string
	FirstName string
	LastName  string
	Email1    string
}

// Repository looks up contacts by id.
type Repository interface {
	GetContact(ctx context.Context, id string) (*Contact, error)
}

const getContactQuery = `
SELECT c.id, COALESCE(c.first_name, ''), COALESCE(c.last_name, ''), COALESCE(ea.email_address, '')
FROM contacts c
LEFT JOIN email_addr_bean_rel r
	ON r.bean_id = c.id AND r.bean_module = 'Contacts' AND r.primary_address = 1 AND r.deleted = 0
LEFT JOIN email_addresses ea
	ON ea.id = r.email_address_id AND ea.deleted = 0
WHERE c.id = ? AND c.deleted = 0
LIMIT 1`

// SQLStore reads contacts from the CRM database tables.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over db.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle is required")
	}
	return &SQLStore{db: db}, nil
}

// GetContact returns the non-deleted contact with id. Missing contacts
// return an error wrapping errors.ErrNotFound.
func (s *SQLStore) GetContact(ctx context.Context, id string) (*Contact, error) {
	var c Contact
	err := s.db.QueryRowContext(ctx, getContactQuery, id).Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email1)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, sdkerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query contact %s: %w", id, err)
	}
	return &c, nil
}

// Schema creates the contact tables when they do not exist. It is used for
// local SQLite databases; production schemas are owned by the CRM.
const Schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id TEXT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	deleted INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS email_addresses (
	id TEXT PRIMARY KEY,
	email_address TEXT,
	deleted INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS email_addr_bean_rel (
	id TEXT PRIMARY KEY,
	email_address_id TEXT,
	bean_id TEXT,
	bean_module TEXT,
	primary_address INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);`

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create contact schema: %w", err)
	}
	return nil
}
