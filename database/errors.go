package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/godamri/helix-audit/http/response"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeQueryCanceled        = "57014"
)

// MapError prefixes err with the response code it corresponds to, keeping
// the original error in the chain.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if IsNoRows(err) {
		return fmt.Errorf("%s: %w", response.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", response.ErrAlreadyExists, pgErr.Detail, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: referenced record not found: %w", response.ErrConflict, err)
		case codeCheckViolation:
			return fmt.Errorf("%s: %s: %w", response.ErrValidation, pgErr.Message, err)
		case codeSerializationFailure:
			return fmt.Errorf("%s: retry transaction: %w", response.ErrVersionMismatch, err)
		case codeQueryCanceled:
			return fmt.Errorf("%s: query timeout: %w", response.ErrGatewayTimeout, err)
		}
	}

	return fmt.Errorf("%s: %w", response.ErrSystem, err)
}

// IsNoRows reports a missing row from either database/sql or native pgx.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, pgx.ErrNoRows)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
