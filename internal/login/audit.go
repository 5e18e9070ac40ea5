// internal/login/audit.go
package login

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Recorder keeps a best-effort trail of credential attempts. A nil pool
// disables it; a failed insert is logged, never surfaced to the caller.
type Recorder struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewRecorder(pool *pgxpool.Pool, log *zap.SugaredLogger) *Recorder {
	return &Recorder{pool: pool, log: log}
}

// EnsureSchema creates the login_attempts table. Idempotent.
func (rec *Recorder) EnsureSchema(ctx context.Context) error {
	if rec.pool == nil {
		return nil
	}
	_, err := rec.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS login_attempts (
  id BIGSERIAL PRIMARY KEY,
  tenant_id text NOT NULL,
  identifier text NOT NULL,
  ip text NOT NULL DEFAULT '',
  success boolean NOT NULL,
  created_at timestamptz NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS login_attempts_tenant_idx ON login_attempts (tenant_id, identifier, created_at);
`)
	return err
}

func (rec *Recorder) Record(ctx context.Context, tenantID, identifier, ip string, success bool) {
	if rec.pool == nil {
		return
	}
	_, err := rec.pool.Exec(ctx,
		`INSERT INTO login_attempts (tenant_id, identifier, ip, success) VALUES ($1,$2,$3,$4)`,
		tenantID, identifier, ip, success)
	if err != nil {
		rec.log.Warnw("login attempt audit", "tenant", tenantID, "err", err)
	}
}
