package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/massy-ia/citydesk/internal/apperr"
)

// AlertFilter narrows ListAlerts. Zero values disable a filter.
type AlertFilter struct {
	Status    string
	RiskLevel int
	// ByRisk orders by descending risk instead of most recent report.
	ByRisk bool
	Limit  int
}

const alertSelect = `SELECT a.id, a.alert_type, a.description, a.latitude, a.longitude, a.risk_level,
        a.status, a.reported_at, a.resolved_at, a.user_id, a.additional_data, ` + publicUserColumns + `
    FROM suspect_alerts a LEFT JOIN users u ON u.id = a.user_id`

func scanAlert(row scanner) (*SuspectAlert, error) {
	var (
		alert      SuspectAlert
		resolvedAt sql.NullTime
		owner      sql.NullString
		extra      sql.NullString
		reporter   nullPublicUser
	)
	dest := append([]any{&alert.ID, &alert.Type, &alert.Description, &alert.Location.Lat, &alert.Location.Lng,
		&alert.RiskLevel, &alert.Status, &alert.ReportedAt, &resolvedAt, &owner, &extra}, reporter.dest()...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	alert.ResolvedAt = timePtr(resolvedAt)
	alert.OwnerID = stringPtr(owner)
	alert.Reporter = reporter.user()
	if err := decodeJSON(extra, &alert.AdditionalData); err != nil {
		return nil, err
	}
	return &alert, nil
}

// CreateAlerts inserts all alerts in one transaction. Risk levels are clamped.
func (s *SQLiteStore) CreateAlerts(ctx context.Context, alerts ...*SuspectAlert) error {
	return s.withTx(ctx, "failed to insert alerts", func(tx *sql.Tx) error {
		for _, alert := range alerts {
			alert.ID = uuid.NewString()
			alert.RiskLevel = ClampRisk(alert.RiskLevel)
			if alert.Status == "" {
				alert.Status = AlertStatusNew
			}
			if alert.ReportedAt.IsZero() {
				alert.ReportedAt = s.now()
			}
			extra, err := encodeJSON(alert.AdditionalData)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `INSERT INTO suspect_alerts (id, alert_type, description, latitude,
                longitude, risk_level, status, reported_at, resolved_at, user_id, additional_data)
                VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				alert.ID, alert.Type, alert.Description, alert.Location.Lat, alert.Location.Lng, alert.RiskLevel,
				alert.Status, alert.ReportedAt, nullTime(alert.ResolvedAt), nullString(alert.OwnerID), extra); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]SuspectAlert, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, filter.Status)
	}
	if filter.RiskLevel > 0 {
		where = append(where, "a.risk_level = ?")
		args = append(args, filter.RiskLevel)
	}

	query := alertSelect
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.ByRisk {
		query += " ORDER BY a.risk_level DESC, a.reported_at DESC"
	} else {
		query += " ORDER BY a.reported_at DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError("failed to query alerts", err)
	}
	defer rows.Close()

	alerts := []SuspectAlert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, mapError("failed to scan alert row", err)
		}
		alerts = append(alerts, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("failed to iterate alerts", err)
	}
	return alerts, nil
}

func (s *SQLiteStore) GetAlert(ctx context.Context, id string) (*SuspectAlert, error) {
	alert, err := scanAlert(s.db.QueryRowContext(ctx, alertSelect+" WHERE a.id = ?", id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("alert not found")
		}
		return nil, mapError("failed to query alert", err)
	}
	return alert, nil
}

// UpdateAlertStatus sets the status; moving to resolved stamps resolved_at.
func (s *SQLiteStore) UpdateAlertStatus(ctx context.Context, id, status string) (*SuspectAlert, error) {
	err := s.withTx(ctx, "failed to update alert", func(tx *sql.Tx) error {
		var resolvedAt *time.Time
		if status == AlertStatusResolved {
			now := s.now()
			resolvedAt = &now
		}
		res, err := tx.ExecContext(ctx, `UPDATE suspect_alerts SET status = ?,
            resolved_at = COALESCE(?, resolved_at) WHERE id = ?`, status, nullTime(resolvedAt), id)
		if err != nil {
			return err
		}
		return expectAffected(res, "alert not found")
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, id)
}

// CountAlerts counts alerts with the given status, or all alerts for "".
func (s *SQLiteStore) CountAlerts(ctx context.Context, status string) (int, error) {
	return countRows(ctx, s.db, "suspect_alerts", status)
}
