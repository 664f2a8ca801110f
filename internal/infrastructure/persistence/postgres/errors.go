package postgres

import (
	stderrors "errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/turtacn/certguard/pkg/constants"
	"github.com/turtacn/certguard/pkg/errors"
)

// uniqueViolation is the PostgreSQL SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// translateError maps driver errors onto CertErrors. CertErrors pass through unchanged.
func translateError(err error, entity, id string) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsCertError(err); ok {
		return err
	}
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.ErrNotFound(entity, id)
	}
	if isUniqueViolation(err) {
		return errors.ErrConflict(entity + " already exists").WithCause(err)
	}
	return errors.WrapError(err, constants.ErrCodeInternal, "database operation failed")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return stderrors.Is(err, gorm.ErrDuplicatedKey)
}
