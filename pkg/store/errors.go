package store

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgconn"

	"github.com/David-Botos/retail-ingress/pkg/model"
)

// SQLSTATE codes the store reacts to
const (
	codeUniqueViolation       = "23505"
	codeUndefinedTable        = "42P01"
	codeInvalidCatalog        = "3D000"
	classConnection           = "08"
	classOperatorIntervention = "57P"
)

// IsUnavailable reports whether err means the store could not be reached or
// holds no snapshot, as opposed to a failing statement
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUndefinedTable, pgErr.Code == codeInvalidCatalog:
			return true
		case strings.HasPrefix(pgErr.Code, classConnection),
			strings.HasPrefix(pgErr.Code, classOperatorIntervention):
			return true
		}
		return false
	}

	// dial failures reach here wrapped by pgconn, which unwraps to the net error
	var netErr net.Error
	return errors.As(err, &netErr)
}

// isUniqueViolation reports a primary key conflict
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}

func writeError(table, op string, err error) *model.StoreWriteError {
	return &model.StoreWriteError{
		Table:              table,
		Op:                 op,
		InvariantViolation: isUniqueViolation(err),
		Err:                err,
	}
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUndefinedTable
}
