package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	"github.com/lib/pq"

	"homebuild/project-portal/project-portal-backend/pkg/apperrors"
)

// ClassifyError turns connection-level failures into StorageUnavailable and
// leaves every other error untouched.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if IsUnavailable(err) {
		return apperrors.StorageUnavailable(err)
	}
	return err
}

// IsUnavailable reports whether err means the database could not be reached
// in time, as opposed to rejecting the statement.
func IsUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "57P02", pqErr.Code == "57P03":
			return true
		}
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
