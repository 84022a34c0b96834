package repository

import "errors"

// ErrNoRowsAffected is returned when a targeted update matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")
