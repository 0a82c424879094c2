package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/timshannon/badgerhold/v4"
)

const processorStoreDir = "processors"

type processorDTO struct {
	Id             string
	StoreId        string
	PayoutMethodId string
	Processor      string
	Blob           []byte
}

type processorRepository struct {
	store *badgerhold.Store
}

func NewPayoutProcessorRepository(
	config ...interface{},
) (domain.PayoutProcessorRepository, error) {
	store, err := openStore(processorStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open payout processor store: %s", err)
	}
	return &processorRepository{store}, nil
}

func (r *processorRepository) Get(
	ctx context.Context, id string,
) (*domain.PayoutProcessor, error) {
	var dto processorDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrProcessorNotFound, id)
		}
		return nil, err
	}
	return dto.toDomain()
}

func (r *processorRepository) Find(
	ctx context.Context, key domain.ProcessorKey,
) (*domain.PayoutProcessor, error) {
	query := badgerhold.Where("StoreId").Eq(key.StoreId).
		And("PayoutMethodId").Eq(string(key.PayoutMethodId)).
		And("Processor").Eq(key.Processor)

	dtos := make([]processorDTO, 0)
	if err := r.store.Find(&dtos, query); err != nil {
		return nil, err
	}
	if len(dtos) <= 0 {
		return nil, nil
	}
	return dtos[0].toDomain()
}

func (r *processorRepository) List(
	ctx context.Context, query domain.ProcessorQuery,
) ([]domain.PayoutProcessor, error) {
	dtos := make([]processorDTO, 0)
	if err := r.store.Find(&dtos, nil); err != nil {
		return nil, err
	}

	processors := make([]domain.PayoutProcessor, 0, len(dtos))
	for _, dto := range dtos {
		p, err := dto.toDomain()
		if err != nil {
			return nil, err
		}
		if len(query.Stores) > 0 && !slices.Contains(query.Stores, p.StoreId) {
			continue
		}
		if len(query.PayoutMethods) > 0 &&
			!slices.Contains(query.PayoutMethods, p.PayoutMethodId) {
			continue
		}
		if len(query.Processors) > 0 && !slices.Contains(query.Processors, p.Processor) {
			continue
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
	dto := processorDTO{
		Id:             processor.Id,
		StoreId:        processor.StoreId,
		PayoutMethodId: string(processor.PayoutMethodId),
		Processor:      processor.Processor,
		Blob:           blob,
	}
	return withRetry(ctx, func() error {
		return r.store.Upsert(processor.Id, dto)
	})
}

func (r *processorRepository) Delete(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		err := r.store.Delete(id, processorDTO{})
		if errors.Is(err, badgerhold.ErrNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrProcessorNotFound, id)
		}
		return err
	})
}

func (r *processorRepository) Close() {
	//nolint:all
	r.store.Close()
}

func (d processorDTO) toDomain() (*domain.PayoutProcessor, error) {
	blob, err := domain.DeserializeProcessorBlob(d.Blob)
	if err != nil {
		return nil, fmt.Errorf("invalid blob for processor %s: %s", d.Id, err)
	}
	return &domain.PayoutProcessor{
		Id:             d.Id,
		StoreId:        d.StoreId,
		PayoutMethodId: domain.PayoutMethodId(d.PayoutMethodId),
		Processor:      d.Processor,
		Blob:           blob,
	}, nil
}
