package repository

import (
	"context"
	"errors"

	"notification-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	xerrors "notification-service/pkg/xerrors"
)

// Repository aggregates all notification DB operations. Every single-row
// mutation is scoped by (id, recipient_id) in SQL so one user can never
// touch another user's rows.
type Repository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	CreateBatch(ctx context.Context, rows []*domain.Notification) ([]*domain.Notification, error)
	ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*domain.Notification, int, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkAsRead(ctx context.Context, id, recipientID string) (*domain.Notification, error)
	MarkAllAsRead(ctx context.Context, recipientID string) error
	Delete(ctx context.Context, id, recipientID string) error
}

type pgRepo struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &pgRepo{db: db}
}

const notificationColumns = `id, recipient_id, type, title, body, metadata, read, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.Type,
		&n.Title,
		&n.Body,
		&n.Metadata,
		&n.Read,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// CreateNotification implements Repository.
func (p *pgRepo) CreateNotification(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}

	query := `
		INSERT INTO notifications (id, recipient_id, type, title, body, metadata, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + notificationColumns

	row := p.db.QueryRow(ctx, query,
		n.ID,
		n.RecipientID,
		n.Type,
		n.Title,
		n.Body,
		n.Metadata,
		n.Read,
	)
	return scanNotification(row)
}

// CreateBatch implements Repository. All rows go out in a single batched
// round trip; any failure surfaces as one error so the caller can abort the
// push step for the whole event.
func (p *pgRepo) CreateBatch(ctx context.Context, rows []*domain.Notification) ([]*domain.Notification, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	query := `
		INSERT INTO notifications (id, recipient_id, type, title, body, metadata, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + notificationColumns

	batch := &pgx.Batch{}
	for _, n := range rows {
		if n.ID == "" {
			n.ID = uuid.New().String()
		}
		batch.Queue(query, n.ID, n.RecipientID, n.Type, n.Title, n.Body, n.Metadata, n.Read)
	}

	br := p.db.SendBatch(ctx, batch)
	defer br.Close()

	created := make([]*domain.Notification, 0, len(rows))
	for range rows {
		n, err := scanNotification(br.QueryRow())
		if err != nil {
			return nil, err
		}
		created = append(created, n)
	}
	return created, nil
}

// ListByRecipient implements Repository. Rows come back newest-first along
// with the recipient's total row count for pagination.
func (p *pgRepo) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*domain.Notification, int, error) {
	query := `
		SELECT ` + notificationColumns + `, COUNT(*) OVER() AS total
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := p.db.Query(ctx, query, recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		notifications []*domain.Notification
		total         int
	)
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID,
			&n.RecipientID,
			&n.Type,
			&n.Title,
			&n.Body,
			&n.Metadata,
			&n.Read,
			&n.CreatedAt,
			&total,
		)
		if err != nil {
			return nil, 0, err
		}
		notifications = append(notifications, &n)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}

	// An offset past the last row returns nothing; fall back to a direct
	// count so the caller still gets the right total.
	if len(notifications) == 0 {
		countQuery := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`
		if err := p.db.QueryRow(ctx, countQuery, recipientID).Scan(&total); err != nil {
			return nil, 0, err
		}
	}

	return notifications, total, nil
}

// CountUnread implements Repository.
func (p *pgRepo) CountUnread(ctx context.Context, recipientID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications
		WHERE recipient_id = $1
		  AND read = false
	`

	var count int
	if err := p.db.QueryRow(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkAsRead implements Repository.
func (p *pgRepo) MarkAsRead(ctx context.Context, id, recipientID string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET read = true
		WHERE id = $1
		  AND recipient_id = $2
		RETURNING ` + notificationColumns

	row := p.db.QueryRow(ctx, query, id, recipientID)
	return scanNotification(row)
}

// MarkAllAsRead implements Repository. Updating zero rows is not an error;
// the caller's unread count simply stays at zero.
func (p *pgRepo) MarkAllAsRead(ctx context.Context, recipientID string) error {
	query := `
		UPDATE notifications
		SET read = true
		WHERE recipient_id = $1
		  AND read = false
	`

	_, err := p.db.Exec(ctx, query, recipientID)
	return err
}

// Delete implements Repository.
func (p *pgRepo) Delete(ctx context.Context, id, recipientID string) error {
	query := `
		DELETE FROM notifications
		WHERE id = $1
		  AND recipient_id = $2
	`

	ct, err := p.db.Exec(ctx, query, id, recipientID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
