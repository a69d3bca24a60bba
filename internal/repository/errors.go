package repository

import (
	"database/sql"
	"errors"

	"github.com/nikhil/saasbase/internal/database"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

func HandleNoRowsError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// handleWriteError maps unique constraint violations to ErrDuplicate.
func handleWriteError(err error) error {
	if database.IsDuplicateKey(err) {
		return ErrDuplicate
	}
	return err
}
