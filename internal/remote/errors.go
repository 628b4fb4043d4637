package remote

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/example/learnsync/internal/apperrors"
	"github.com/lib/pq"
)

// classify maps a driver error onto the apperrors taxonomy.
// Rejections of the data itself wrap ErrRemoteValidation, anything that means
// the server could not be reached wraps ErrRemoteUnavailable. Other errors are
// returned wrapped but unclassified.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		// data exception, integrity constraint violation
		case "22", "23":
			return fmt.Errorf("%s: %w: %w", op, apperrors.ErrRemoteValidation, err)
		// connection exception, insufficient resources, operator intervention
		case "08", "53", "57":
			return fmt.Errorf("%s: %w: %w", op, apperrors.ErrRemoteUnavailable, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, apperrors.ErrRemoteUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isRemoteUnavailable(err error) bool {
	return errors.Is(err, apperrors.ErrRemoteUnavailable)
}
