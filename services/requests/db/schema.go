package db

import (
	"errors"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// ErrConflict is returned by compare-and-set transitions when the row
// was not in the expected state.
var ErrConflict = errors.New("request is not in the expected status")
