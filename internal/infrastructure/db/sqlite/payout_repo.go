package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/infrastructure/db/sqlite/sqlc/queries"
	"github.com/shopspring/decimal"
)

const selectPayoutsBaseQuery = `SELECT id, store_id, pull_payment_id, payout_method_id, destination, amount, state, proof, error_count, disabled_processors, created_at FROM payout`

type payoutRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewPayoutRepository(config ...interface{}) (domain.PayoutRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf("cannot open payout repository: invalid config, expected db at 0")
	}

	return &payoutRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *payoutRepository) Add(ctx context.Context, payouts ...domain.Payout) error {
	return execTx(ctx, r.db, func(querierWithTx *queries.Queries) error {
		for _, p := range payouts {
			if err := querierWithTx.InsertPayout(ctx, queries.InsertPayoutParams{
				ID:                 p.Id,
				StoreID:            p.StoreId,
				PullPaymentID:      p.PullPaymentId,
				PayoutMethodID:     string(p.PayoutMethodId),
				Destination:        p.Destination,
				Amount:             p.Amount.String(),
				State:              string(p.State),
				Proof:              p.Proof,
				ErrorCount:         int64(p.Blob.ErrorCount),
				DisabledProcessors: joinList(p.Blob.DisabledProcessors),
				CreatedAt:          p.CreatedAt.UnixNano(),
			}); err != nil {
				return fmt.Errorf("failed to insert payout %s: %w", p.Id, err)
			}
		}
		return nil
	})
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	row, err := r.querier.SelectPayout(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, id)
		}
		return nil, fmt.Errorf("failed to get payout: %w", err)
	}
	return rowToPayout(row)
}

func (r *payoutRepository) Query(
	ctx context.Context, query domain.PayoutQuery,
) ([]domain.Payout, error) {
	conditions := make([]string, 0, 3)
	args := make([]interface{}, 0)

	if cond, condArgs := inClause("state", query.States); len(cond) > 0 {
		conditions = append(conditions, cond)
		args = append(args, condArgs...)
	}
	if cond, condArgs := inClause("payout_method_id", query.PayoutMethods); len(cond) > 0 {
		conditions = append(conditions, cond)
		args = append(args, condArgs...)
	}
	if cond, condArgs := inClause("store_id", query.Stores); len(cond) > 0 {
		conditions = append(conditions, cond)
		args = append(args, condArgs...)
	}

	stmt := selectPayoutsBaseQuery
	if len(conditions) > 0 {
		stmt += " WHERE " + strings.Join(conditions, " AND ")
	}
	stmt += " ORDER BY created_at, id"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	payouts := make([]domain.Payout, 0)
	for rows.Next() {
		var row queries.Payout
		if err := rows.Scan(
			&row.ID,
			&row.StoreID,
			&row.PullPaymentID,
			&row.PayoutMethodID,
			&row.Destination,
			&row.Amount,
			&row.State,
			&row.Proof,
			&row.ErrorCount,
			&row.DisabledProcessors,
			&row.CreatedAt,
		); err != nil {
			return nil, err
		}
		payout, err := rowToPayout(row)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *payout)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return payouts, nil
}

// Update writes the given payouts only if each stored row is still in the
// state the payout was loaded with.
func (r *payoutRepository) Update(ctx context.Context, payouts ...domain.Payout) error {
	return execTx(ctx, r.db, func(querierWithTx *queries.Queries) error {
		conflicts := make([]string, 0)
		for _, p := range payouts {
			affected, err := querierWithTx.UpdatePayout(ctx, queries.UpdatePayoutParams{
				State:              string(p.State),
				Proof:              p.Proof,
				ErrorCount:         int64(p.Blob.ErrorCount),
				DisabledProcessors: joinList(p.Blob.DisabledProcessors),
				ID:                 p.Id,
				State_2:            string(p.StoredState()),
			})
			if err != nil {
				return fmt.Errorf("failed to update payout %s: %w", p.Id, err)
			}
			if affected > 0 {
				continue
			}

			if _, err := querierWithTx.SelectPayout(ctx, p.Id); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, p.Id)
				}
				return fmt.Errorf("failed to get payout %s: %w", p.Id, err)
			}
			conflicts = append(conflicts, p.Id)
		}
		if len(conflicts) > 0 {
			return domain.PayoutConflictError{PayoutIds: conflicts}
		}
		return nil
	})
}

func (r *payoutRepository) Close() {
	_ = r.db.Close()
}

func rowToPayout(row queries.Payout) (*domain.Payout, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for payout %s: %w", row.ID, err)
	}
	payout := &domain.Payout{
		Id:             row.ID,
		StoreId:        row.StoreID,
		PullPaymentId:  row.PullPaymentID,
		PayoutMethodId: domain.PayoutMethodId(row.PayoutMethodID),
		Destination:    row.Destination,
		Amount:         amount,
		State:          domain.PayoutState(row.State),
		Proof:          row.Proof,
		Blob: domain.PayoutBlob{
			ErrorCount:         int(row.ErrorCount),
			DisabledProcessors: splitList(row.DisabledProcessors),
		},
		CreatedAt: time.Unix(0, row.CreatedAt),
	}
	payout.MarkPersisted()
	return payout, nil
}
