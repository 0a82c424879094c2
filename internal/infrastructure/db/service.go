package db

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/ark-network/payoutd/internal/core/ports"
	badgerdb "github.com/ark-network/payoutd/internal/infrastructure/db/badger"
	sqlitedb "github.com/ark-network/payoutd/internal/infrastructure/db/sqlite"
	"github.com/ark-network/payoutd/internal/infrastructure/db/sqlite/migration"
	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	payoutStoreTypes = map[string]func(...interface{}) (domain.PayoutRepository, error){
		"badger": badgerdb.NewPayoutRepository,
		"sqlite": sqlitedb.NewPayoutRepository,
	}
	processorStoreTypes = map[string]func(...interface{}) (domain.PayoutProcessorRepository, error){
		"badger": badgerdb.NewPayoutProcessorRepository,
		"sqlite": sqlitedb.NewPayoutProcessorRepository,
	}
	paymentMethodStoreTypes = map[string]func(...interface{}) (domain.StorePaymentMethodRepository, error){
		"badger": badgerdb.NewStorePaymentMethodRepository,
		"sqlite": sqlitedb.NewStorePaymentMethodRepository,
	}
	walletTxStoreTypes = map[string]func(...interface{}) (domain.WalletTxRepository, error){
		"badger": badgerdb.NewWalletTxRepository,
		"sqlite": sqlitedb.NewWalletTxRepository,
	}
)

const (
	sqliteDbFile = "sqlite.db"
)

// ServiceConfig selects the store type. For badger, DataStoreConfig is
// (baseDir string, logger badger.Logger), with an empty baseDir meaning
// in-memory. For sqlite it is (baseDir string).
type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

type service struct {
	payoutStore        domain.PayoutRepository
	processorStore     domain.PayoutProcessorRepository
	paymentMethodStore domain.StorePaymentMethodRepository
	walletTxStore      domain.WalletTxRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	payoutStoreFactory, ok := payoutStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}
	processorStoreFactory := processorStoreTypes[config.DataStoreType]
	paymentMethodStoreFactory := paymentMethodStoreTypes[config.DataStoreType]
	walletTxStoreFactory := walletTxStoreTypes[config.DataStoreType]

	storeConfig := config.DataStoreConfig
	if config.DataStoreType == "sqlite" {
		db, err := openSqlite(config.DataStoreConfig)
		if err != nil {
			return nil, err
		}
		if err := migrateSqlite(db); err != nil {
			return nil, fmt.Errorf("failed to migrate sqlite: %w", err)
		}
		storeConfig = []interface{}{db}
	}

	payoutStore, err := payoutStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout store: %w", err)
	}

	processorStore, err := processorStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout processor store: %w", err)
	}

	paymentMethodStore, err := paymentMethodStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment method store: %w", err)
	}

	walletTxStore, err := walletTxStoreFactory(storeConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet tx store: %w", err)
	}

	return &service{
		payoutStore:        payoutStore,
		processorStore:     processorStore,
		paymentMethodStore: paymentMethodStore,
		walletTxStore:      walletTxStore,
	}, nil
}

func (s *service) Payouts() domain.PayoutRepository {
	return s.payoutStore
}

func (s *service) Processors() domain.PayoutProcessorRepository {
	return s.processorStore
}

func (s *service) PaymentMethods() domain.StorePaymentMethodRepository {
	return s.paymentMethodStore
}

func (s *service) WalletTxs() domain.WalletTxRepository {
	return s.walletTxStore
}

func (s *service) Close() {
	s.payoutStore.Close()
	s.processorStore.Close()
	s.paymentMethodStore.Close()
	s.walletTxStore.Close()
}

func openSqlite(config []interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, errors.New("invalid config")
	}
	baseDir, ok := config[0].(string)
	if !ok {
		return nil, errors.New("invalid config: expected base directory at 0")
	}
	return sqlitedb.OpenDb(filepath.Join(baseDir, sqliteDbFile))
}

func migrateSqlite(db *sql.DB) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migration.Files, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate up: %w", err)
	}

	return nil
}
