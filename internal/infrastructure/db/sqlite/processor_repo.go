package sqlitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/infrastructure/db/sqlite/sqlc/queries"
)

type processorRepository struct {
	db      *sql.DB
	querier *queries.Queries
}

func NewPayoutProcessorRepository(
	config ...interface{},
) (domain.PayoutProcessorRepository, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open payout processor repository: invalid config, expected db at 0",
		)
	}

	return &processorRepository{
		db:      db,
		querier: queries.New(db),
	}, nil
}

func (r *processorRepository) Get(
	ctx context.Context, id string,
) (*domain.PayoutProcessor, error) {
	row, err := r.querier.SelectPayoutProcessor(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProcessorNotFound, id)
		}
		return nil, fmt.Errorf("failed to get payout processor: %w", err)
	}
	return rowToProcessor(row)
}

func (r *processorRepository) Find(
	ctx context.Context, key domain.ProcessorKey,
) (*domain.PayoutProcessor, error) {
	row, err := r.querier.SelectPayoutProcessorByKey(
		ctx, queries.SelectPayoutProcessorByKeyParams{
			StoreID:        key.StoreId,
			PayoutMethodID: string(key.PayoutMethodId),
			Processor:      key.Processor,
		},
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payout processor: %w", err)
	}
	return rowToProcessor(row)
}

func (r *processorRepository) List(
	ctx context.Context, query domain.ProcessorQuery,
) ([]domain.PayoutProcessor, error) {
	rows, err := r.querier.SelectAllPayoutProcessors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout processors: %w", err)
	}

	processors := make([]domain.PayoutProcessor, 0, len(rows))
	for _, row := range rows {
		if len(query.Stores) > 0 && !slices.Contains(query.Stores, row.StoreID) {
			continue
		}
		if len(query.PayoutMethods) > 0 && !slices.Contains(
			query.PayoutMethods, domain.PayoutMethodId(row.PayoutMethodID),
		) {
			continue
		}
		if len(query.Processors) > 0 && !slices.Contains(query.Processors, row.Processor) {
			continue
		}
		p, err := rowToProcessor(row)
		if err != nil {
			return nil, err
		}
		processors = append(processors, *p)
	}
	return processors, nil
}

func (r *processorRepository) Upsert(
	ctx context.Context, processor domain.PayoutProcessor,
) error {
	blob, err := processor.Blob.Serialize()
	if err != nil {
		return err
	}
	if err := r.querier.UpsertPayoutProcessor(ctx, queries.UpsertPayoutProcessorParams{
		ID:             processor.Id,
		StoreID:        processor.StoreId,
		PayoutMethodID: string(processor.PayoutMethodId),
		Processor:      processor.Processor,
		Blob:           blob,
	}); err != nil {
		return fmt.Errorf("failed to upsert payout processor: %w", err)
	}
	return nil
}

func (r *processorRepository) Delete(ctx context.Context, id string) error {
	affected, err := r.querier.DeletePayoutProcessor(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete payout processor: %w", err)
	}
	if affected <= 0 {
		return fmt.Errorf("%w: %s", domain.ErrProcessorNotFound, id)
	}
	return nil
}

func (r *processorRepository) Close() {
	_ = r.db.Close()
}

func rowToProcessor(row queries.PayoutProcessor) (*domain.PayoutProcessor, error) {
	blob, err := domain.DeserializeProcessorBlob(row.Blob)
	if err != nil {
		return nil, fmt.Errorf("invalid blob for processor %s: %w", row.ID, err)
	}
	return &domain.PayoutProcessor{
		Id:             row.ID,
		StoreId:        row.StoreID,
		PayoutMethodId: domain.PayoutMethodId(row.PayoutMethodID),
		Processor:      row.Processor,
		Blob:           blob,
	}, nil
}
