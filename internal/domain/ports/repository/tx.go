package repository

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle. Its concrete type is infra-defined
// (pgx.Tx for Postgres); repositories must accept nil and fall back to the
// non-transactional path.
type Tx interface{}

// NoTX is passed where a call explicitly runs outside any transaction.
var NoTX Tx

// TransactionManager runs fn inside a single database transaction, handing
// the transaction handle through `tx`. If fn returns an error the whole
// transaction rolls back, leaving no partial effect; this is what makes the
// reconciliation coordinator safe to retry.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}
