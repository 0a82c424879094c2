package badgerdb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"
)

const payoutStoreDir = "payouts"

type payoutDTO struct {
	Id                 string
	StoreId            string
	PullPaymentId      string
	PayoutMethodId     string
	Destination        string
	Amount             string
	State              string
	Proof              []byte
	ErrorCount         int
	DisabledProcessors []string
	CreatedAt          int64
}

type payoutRepository struct {
	store *badgerhold.Store
}

func NewPayoutRepository(config ...interface{}) (domain.PayoutRepository, error) {
	store, err := openStore(payoutStoreDir, config...)
	if err != nil {
		return nil, fmt.Errorf("failed to open payout store: %s", err)
	}
	return &payoutRepository{store}, nil
}

func (r *payoutRepository) Add(ctx context.Context, payouts ...domain.Payout) error {
	return withRetry(ctx, func() error {
		return r.store.Badger().Update(func(tx *badger.Txn) error {
			for _, p := range payouts {
				if err := r.store.TxInsert(tx, p.Id, toPayoutDTO(p)); err != nil {
					if errors.Is(err, badgerhold.ErrKeyExists) {
						return fmt.Errorf("payout %s already exists", p.Id)
					}
					return err
				}
			}
			return nil
		})
	})
}

func (r *payoutRepository) Get(ctx context.Context, id string) (*domain.Payout, error) {
	var dto payoutDTO
	if err := r.store.Get(id, &dto); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, id)
		}
		return nil, err
	}
	return dto.toDomain()
}

func (r *payoutRepository) Query(
	ctx context.Context, query domain.PayoutQuery,
) ([]domain.Payout, error) {
	var q *badgerhold.Query
	where := func(field string, values []interface{}) {
		if len(values) <= 0 {
			return
		}
		if q == nil {
			q = badgerhold.Where(field).In(values...)
			return
		}
		q = q.And(field).In(values...)
	}

	states := make([]interface{}, 0, len(query.States))
	for _, s := range query.States {
		states = append(states, string(s))
	}
	methods := make([]interface{}, 0, len(query.PayoutMethods))
	for _, m := range query.PayoutMethods {
		methods = append(methods, string(m))
	}
	stores := make([]interface{}, 0, len(query.Stores))
	for _, s := range query.Stores {
		stores = append(stores, s)
	}
	where("State", states)
	where("PayoutMethodId", methods)
	where("StoreId", stores)

	dtos := make([]payoutDTO, 0)
	if err := r.store.Find(&dtos, q); err != nil {
		return nil, err
	}

	payouts := make([]domain.Payout, 0, len(dtos))
	for _, dto := range dtos {
		p, err := dto.toDomain()
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	sort.SliceStable(payouts, func(i, j int) bool {
		return payouts[i].CreatedAt.Before(payouts[j].CreatedAt)
	})
	return payouts, nil
}

// Update writes the given payouts only if each stored row is still in the
// state the payout was loaded with.
func (r *payoutRepository) Update(ctx context.Context, payouts ...domain.Payout) error {
	return withRetry(ctx, func() error {
		return r.store.Badger().Update(func(tx *badger.Txn) error {
			conflicts := make([]string, 0)
			for _, p := range payouts {
				var stored payoutDTO
				if err := r.store.TxGet(tx, p.Id, &stored); err != nil {
					if errors.Is(err, badgerhold.ErrNotFound) {
						return fmt.Errorf("%w: %s", domain.ErrPayoutNotFound, p.Id)
					}
					return err
				}
				if domain.PayoutState(stored.State) != p.StoredState() {
					conflicts = append(conflicts, p.Id)
					continue
				}
				if err := r.store.TxUpdate(tx, p.Id, toPayoutDTO(p)); err != nil {
					return err
				}
			}
			if len(conflicts) > 0 {
				return domain.PayoutConflictError{PayoutIds: conflicts}
			}
			return nil
		})
	})
}

func (r *payoutRepository) Close() {
	//nolint:all
	r.store.Close()
}

func toPayoutDTO(p domain.Payout) payoutDTO {
	return payoutDTO{
		Id:                 p.Id,
		StoreId:            p.StoreId,
		PullPaymentId:      p.PullPaymentId,
		PayoutMethodId:     string(p.PayoutMethodId),
		Destination:        p.Destination,
		Amount:             p.Amount.String(),
		State:              string(p.State),
		Proof:              p.Proof,
		ErrorCount:         p.Blob.ErrorCount,
		DisabledProcessors: p.Blob.DisabledProcessors,
		CreatedAt:          p.CreatedAt.UnixNano(),
	}
}

func (d payoutDTO) toDomain() (*domain.Payout, error) {
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount for payout %s: %s", d.Id, err)
	}
	payout := &domain.Payout{
		Id:             d.Id,
		StoreId:        d.StoreId,
		PullPaymentId:  d.PullPaymentId,
		PayoutMethodId: domain.PayoutMethodId(d.PayoutMethodId),
		Destination:    d.Destination,
		Amount:         amount,
		State:          domain.PayoutState(d.State),
		Proof:          d.Proof,
		Blob: domain.PayoutBlob{
			ErrorCount:         d.ErrorCount,
			DisabledProcessors: d.DisabledProcessors,
		},
		CreatedAt: time.Unix(0, d.CreatedAt),
	}
	payout.MarkPersisted()
	return payout, nil
}
