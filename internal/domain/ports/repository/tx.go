package repository

// Tx is the infra-defined transaction or connection handle (pgx.Tx or a
// pgxpool connection for Postgres). Repositories MUST accept a nil tx and
// fall back to their pool.
type Tx interface{}
