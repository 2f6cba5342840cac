package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicore.org/internal/audit"
	"clinicore.org/internal/ids"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) AppendEvent(ctx context.Context, ev audit.Event) (audit.Event, error) {
	if s.db == nil {
		return audit.Event{}, errors.New("database connection unavailable")
	}
	ev.ID = ids.New()
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.ExecContext(ctx, `
		insert into audit_events (id, actor_id, action, object_type, object_id, ip, user_agent, ua_summary, request_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, ev.ID, nullIfEmpty(ev.ActorID), ev.Action, nullIfEmpty(ev.ObjectType), nullIfEmpty(ev.ObjectID),
		nullIfEmpty(ev.IP), nullIfEmpty(ev.UserAgent), nullIfEmpty(ev.UASummary), nullIfEmpty(ev.RequestID), ev.CreatedAt); err != nil {
		return audit.Event{}, err
	}
	return ev, nil
}

func (s *Store) QueryEvents(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	if s.db == nil {
		return nil, errors.New("database connection unavailable")
	}
	var (
		where []string
		args  []any
		idx   = 1
	)
	add := func(clause string, val any) {
		where = append(where, fmt.Sprintf(clause, idx))
		args = append(args, val)
		idx++
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ObjectType != "" {
		add("object_type = $%d", f.ObjectType)
	}
	if f.ObjectID != "" {
		add("object_id = $%d", f.ObjectID)
	}
	if !f.From.IsZero() {
		add("created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("created_at <= $%d", f.To)
	}

	query := `
		select id, actor_id, action, object_type, object_id, ip, user_agent, ua_summary, request_id, created_at
		from audit_events`
	if len(where) > 0 {
		query += "\n\t\twhere " + strings.Join(where, " and ")
	}
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	query += fmt.Sprintf("\n\t\torder by created_at desc\n\t\tlimit $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev                                          audit.Event
			actor, objType, objID, ip, ua, uaSum, reqID sql.NullString
		)
		if err := rows.Scan(&ev.ID, &actor, &ev.Action, &objType, &objID, &ip, &ua, &uaSum, &reqID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.ActorID = actor.String
		ev.ObjectType = objType.String
		ev.ObjectID = objID.String
		ev.IP = ip.String
		ev.UserAgent = ua.String
		ev.UASummary = uaSum.String
		ev.RequestID = reqID.String
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
