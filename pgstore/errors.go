// pgstore/errors.go
package pgstore

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vinizap/pronode/remote"
)

// mapError translates driver errors into the remote sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.InsufficientPrivilege:
			return fmt.Errorf("%w: %s", remote.ErrPermissionDenied, pgErr.Message)
		case pgErr.Code == pgerrcode.InvalidTextRepresentation,
			pgErr.Code == pgerrcode.InvalidJSONText,
			pgErr.Code == pgerrcode.UntranslatableCharacter:
			return fmt.Errorf("%w: %s", remote.ErrInvalidValue, pgErr.Message)
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgErr.Code == pgerrcode.AdminShutdown,
			pgErr.Code == pgerrcode.CannotConnectNow:
			return fmt.Errorf("%w: %s", remote.ErrOffline, pgErr.Message)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", remote.ErrOffline, err)
	}
	return err
}
