package history

import (
	"context"
	"database/sql"
	"time"
)

// Recorder appends status-history entries inside the caller's transaction so
// the transition and its audit record commit or roll back together.
type Recorder struct {
	Now func() time.Time
}

type Entry struct {
	RecommendationID string
	OldStatus        string
	NewStatus        string
	ChangedByID      string
	Reason           string
}

func (r Recorder) Append(ctx context.Context, tx *sql.Tx, e Entry) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx, `INSERT INTO status_history(recommendation_id,old_status,new_status,changed_by_id,changed_at,reason) VALUES (?,?,?,?,?,?)`,
		e.RecommendationID, nullable(e.OldStatus), e.NewStatus, e.ChangedByID, ts, nullable(e.Reason))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
