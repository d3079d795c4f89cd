package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/jmoiron/sqlx"
)

// insertBatchSize bounds the number of rows per INSERT statement.
const insertBatchSize = 100

type requestLogsRepo struct {
	db sqlx.ExtContext
}

func (r *requestLogsRepo) InsertRequestLogs(ctx context.Context, logs []domain.RequestLog) error {
	for start := 0; start < len(logs); start += insertBatchSize {
		end := min(start+insertBatchSize, len(logs))
		if err := r.insertBatch(ctx, logs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *requestLogsRepo) insertBatch(ctx context.Context, logs []domain.RequestLog) error {
	var sb strings.Builder
	sb.WriteString(`INSERT INTO request_logs
		(id, method, route, status, duration_ms, user_id, transport, auth_state, created_at) VALUES `)

	args := make([]any, 0, len(logs)*9)
	for i, l := range logs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			l.ID, l.Method, l.Route, l.Status, l.DurationMS,
			l.UserID, string(l.Transport), l.AuthState, l.CreatedAt.UTC(),
		)
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(sb.String()), args...)
	return err
}

func (r *requestLogsRepo) SummarizeRequests(ctx context.Context, since, until time.Time, topN int) (domain.TrafficSummary, error) {
	since, until = since.UTC(), until.UTC()
	sum := domain.TrafficSummary{
		Since:         since,
		Until:         until,
		StatusClasses: make(map[string]int64),
		AuthStates:    make(map[string]int64),
		TopRoutes:     []domain.RouteCount{},
	}

	var totals struct {
		Total  int64   `db:"total"`
		AvgMS  float64 `db:"avg_ms"`
		Active int64   `db:"active"`
	}
	q := `SELECT
			COUNT(*) AS total,
			COALESCE(CAST(AVG(duration_ms) AS DOUBLE PRECISION), 0) AS avg_ms,
			COUNT(DISTINCT NULLIF(user_id, '')) AS active
		FROM request_logs
		WHERE created_at >= ? AND created_at < ?`
	if err := sqlx.GetContext(ctx, r.db, &totals, r.db.Rebind(q), since, until); err != nil {
		return sum, fmt.Errorf("summarize totals: %w", err)
	}
	sum.TotalRequests = totals.Total
	sum.AvgDurationMS = totals.AvgMS
	sum.ActiveUsers = totals.Active

	var classes []struct {
		Class int   `db:"class"`
		Count int64 `db:"n"`
	}
	q = `SELECT status / 100 AS class, COUNT(*) AS n
		FROM request_logs
		WHERE created_at >= ? AND created_at < ?
		GROUP BY status / 100`
	if err := sqlx.SelectContext(ctx, r.db, &classes, r.db.Rebind(q), since, until); err != nil {
		return sum, fmt.Errorf("summarize status classes: %w", err)
	}
	for _, c := range classes {
		sum.StatusClasses[fmt.Sprintf("%dxx", c.Class)] = c.Count
	}

	var states []struct {
		State string `db:"auth_state"`
		Count int64  `db:"n"`
	}
	q = `SELECT auth_state, COUNT(*) AS n
		FROM request_logs
		WHERE created_at >= ? AND created_at < ?
		GROUP BY auth_state`
	if err := sqlx.SelectContext(ctx, r.db, &states, r.db.Rebind(q), since, until); err != nil {
		return sum, fmt.Errorf("summarize auth states: %w", err)
	}
	for _, s := range states {
		sum.AuthStates[s.State] = s.Count
	}

	if topN <= 0 {
		return sum, nil
	}

	var routes []struct {
		Method string  `db:"method"`
		Route  string  `db:"route"`
		Count  int64   `db:"n"`
		AvgMS  float64 `db:"avg_ms"`
	}
	q = `SELECT method, route, COUNT(*) AS n,
			COALESCE(CAST(AVG(duration_ms) AS DOUBLE PRECISION), 0) AS avg_ms
		FROM request_logs
		WHERE created_at >= ? AND created_at < ?
		GROUP BY method, route
		ORDER BY n DESC, route ASC, method ASC
		LIMIT ?`
	if err := sqlx.SelectContext(ctx, r.db, &routes, r.db.Rebind(q), since, until, topN); err != nil {
		return sum, fmt.Errorf("summarize routes: %w", err)
	}
	for _, rc := range routes {
		sum.TopRoutes = append(sum.TopRoutes, domain.RouteCount{
			Method:        rc.Method,
			Route:         rc.Route,
			Count:         rc.Count,
			AvgDurationMS: rc.AvgMS,
		})
	}
	return sum, nil
}

func (r *requestLogsRepo) PurgeRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM request_logs WHERE created_at < ?`), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
