// Package repository provides the PostgreSQL persistence of the remote
// application service.
package repository

import (
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"
)

// psql builds statements with PostgreSQL placeholders.
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
