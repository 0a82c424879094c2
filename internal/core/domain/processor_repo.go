package domain

import "context"

type ProcessorQuery struct {
	Stores        []string
	PayoutMethods []PayoutMethodId
	Processors    []string
}

type PayoutProcessorRepository interface {
	Get(ctx context.Context, id string) (*PayoutProcessor, error)
	// Find returns nil if no config exists for the given key.
	Find(ctx context.Context, key ProcessorKey) (*PayoutProcessor, error)
	List(ctx context.Context, query ProcessorQuery) ([]PayoutProcessor, error)
	Upsert(ctx context.Context, processor PayoutProcessor) error
	Delete(ctx context.Context, id string) error
	Close()
}
