package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ark-network/payoutd/internal/core/application"
	"github.com/ark-network/payoutd/internal/core/ports"
	"github.com/ark-network/payoutd/internal/infrastructure/db"
	"github.com/ark-network/payoutd/internal/infrastructure/esplora"
	redisbus "github.com/ark-network/payoutd/internal/infrastructure/event-bus/redis"
	watermillbus "github.com/ark-network/payoutd/internal/infrastructure/event-bus/watermill"
	feeestimator "github.com/ark-network/payoutd/internal/infrastructure/fee-estimator"
	scheduler "github.com/ark-network/payoutd/internal/infrastructure/scheduler/gocron"
	esplorawallet "github.com/ark-network/payoutd/internal/infrastructure/wallet/esplora"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	supportedDbs = supportedType{
		"badger": {},
		"sqlite": {},
	}
	supportedFeeEstimators = supportedType{
		"esplora": {},
		"static":  {},
	}
	supportedEventBuses = supportedType{
		"inmemory": {},
		"redis":    {},
	}
	supportedNetworks = map[string]*chaincfg.Params{
		"bitcoin": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"signet":  &chaincfg.SigNetParams,
		"regtest": &chaincfg.RegressionNetParams,
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

	DbType               string
	DbDir                string
	Network              string
	EsploraURL           string
	WalletGapLimit       uint32
	FeeEstimatorType     string
	StaticFeeRate        uint64
	EventBusType         string
	RedisURL             string
	GlobalPollInterval   time.Duration
	BroadcastWaitTimeout time.Duration
	MinInterval          time.Duration
	MaxInterval          time.Duration

	repo         ports.RepoManager
	esplora      *esplora.Client
	wallet       ports.WalletService
	feeEstimator ports.FeeEstimator
	eventBus     ports.EventBus
	scheduler    ports.SchedulerService
	registry     application.RegistryService
	adminSvc     application.AdminService
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir              = "DATADIR"
	Port                 = "HTTP_PORT"
	LogLevel             = "LOG_LEVEL"
	DbType               = "DB_TYPE"
	Network              = "NETWORK"
	EsploraURL           = "ESPLORA_URL"
	WalletGapLimit       = "WALLET_GAP_LIMIT"
	FeeEstimatorType     = "FEE_ESTIMATOR_TYPE"
	StaticFeeRate        = "STATIC_FEE_RATE"
	EventBusType         = "EVENT_BUS_TYPE"
	RedisURL             = "REDIS_URL"
	GlobalPollInterval   = "GLOBAL_POLL_INTERVAL"
	BroadcastWaitTimeout = "BROADCAST_WAIT_TIMEOUT"
	MinInterval          = "MIN_INTERVAL"
	MaxInterval          = "MAX_INTERVAL"

	defaultDatadir              = btcutil.AppDataDir("payoutd", false)
	DefaultPort                 = 7171
	defaultLogLevel             = 4
	defaultDbType               = "sqlite"
	defaultNetwork              = "bitcoin"
	defaultEsploraURL           = "https://blockstream.info/api"
	defaultWalletGapLimit       = esplorawallet.DefaultGapLimit
	defaultFeeEstimatorType     = "esplora"
	defaultStaticFeeRate        = 2
	defaultEventBusType         = "inmemory"
	defaultGlobalPollInterval   = 60
	defaultBroadcastWaitTimeout = 20
	defaultMinInterval          = time.Minute
	defaultMaxInterval          = 24 * time.Hour
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("PAYOUTD")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, DefaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(Network, defaultNetwork)
	viper.SetDefault(EsploraURL, defaultEsploraURL)
	viper.SetDefault(WalletGapLimit, defaultWalletGapLimit)
	viper.SetDefault(FeeEstimatorType, defaultFeeEstimatorType)
	viper.SetDefault(StaticFeeRate, defaultStaticFeeRate)
	viper.SetDefault(EventBusType, defaultEventBusType)
	viper.SetDefault(GlobalPollInterval, defaultGlobalPollInterval)
	viper.SetDefault(BroadcastWaitTimeout, defaultBroadcastWaitTimeout)
	viper.SetDefault(MinInterval, defaultMinInterval)
	viper.SetDefault(MaxInterval, defaultMaxInterval)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	return &Config{
		Datadir:              viper.GetString(Datadir),
		Port:                 viper.GetUint32(Port),
		LogLevel:             viper.GetInt(LogLevel),
		DbType:               viper.GetString(DbType),
		DbDir:                filepath.Join(viper.GetString(Datadir), "db"),
		Network:              strings.ToLower(viper.GetString(Network)),
		EsploraURL:           viper.GetString(EsploraURL),
		WalletGapLimit:       viper.GetUint32(WalletGapLimit),
		FeeEstimatorType:     viper.GetString(FeeEstimatorType),
		StaticFeeRate:        viper.GetUint64(StaticFeeRate),
		EventBusType:         viper.GetString(EventBusType),
		RedisURL:             viper.GetString(RedisURL),
		GlobalPollInterval:   time.Duration(viper.GetInt64(GlobalPollInterval)) * time.Second,
		BroadcastWaitTimeout: time.Duration(viper.GetInt64(BroadcastWaitTimeout)) * time.Second,
		MinInterval:          viper.GetDuration(MinInterval),
		MaxInterval:          viper.GetDuration(MaxInterval),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedFeeEstimators.supports(c.FeeEstimatorType) {
		return fmt.Errorf(
			"fee estimator type not supported, please select one of: %s", supportedFeeEstimators,
		)
	}
	if !supportedEventBuses.supports(c.EventBusType) {
		return fmt.Errorf(
			"event bus type not supported, please select one of: %s", supportedEventBuses,
		)
	}
	if _, ok := supportedNetworks[c.Network]; !ok {
		networks := make([]string, 0, len(supportedNetworks))
		for n := range supportedNetworks {
			networks = append(networks, n)
		}
		return fmt.Errorf("invalid network, must be one of: %s", strings.Join(networks, " | "))
	}
	if len(c.EsploraURL) <= 0 {
		return fmt.Errorf("missing esplora url")
	}
	if c.EventBusType == "redis" && len(c.RedisURL) <= 0 {
		return fmt.Errorf("missing redis url, required by the redis event bus")
	}
	if c.FeeEstimatorType == "static" && c.StaticFeeRate == 0 {
		return fmt.Errorf("static fee rate must be greater than 0")
	}
	if c.GlobalPollInterval <= 0 {
		return fmt.Errorf("invalid global poll interval, must be at least 1 second")
	}
	if c.MinInterval <= 0 {
		return fmt.Errorf("invalid min interval, must be positive")
	}
	if c.MaxInterval > 0 && c.MinInterval > c.MaxInterval {
		return fmt.Errorf("min interval %s exceeds max interval %s", c.MinInterval, c.MaxInterval)
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.walletService(); err != nil {
		return err
	}
	if err := c.feeEstimatorService(); err != nil {
		return err
	}
	if err := c.eventBusService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	if err := c.registryService(); err != nil {
		return err
	}
	if err := c.adminService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) RegistryService() application.RegistryService {
	return c.registry
}

func (c *Config) AdminService() application.AdminService {
	return c.adminSvc
}

// Close releases the services in reverse order of creation.
func (c *Config) Close() {
	if c.eventBus != nil {
		c.eventBus.Close()
	}
	if c.feeEstimator != nil {
		c.feeEstimator.Close()
	}
	if c.wallet != nil {
		c.wallet.Close()
	}
	if c.repo != nil {
		c.repo.Close()
	}
}

func (c *Config) repoManager() error {
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	case "sqlite":
		dataStoreConfig = []interface{}{c.DbDir}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		DataStoreType:   c.DbType,
		DataStoreConfig: dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) walletService() error {
	c.esplora = esplora.NewClient(c.EsploraURL, 0)

	svc, err := esplorawallet.NewService(
		c.esplora, supportedNetworks[c.Network], c.WalletGapLimit, 0,
	)
	if err != nil {
		return fmt.Errorf("failed to create wallet service: %s", err)
	}

	c.wallet = svc
	return nil
}

func (c *Config) feeEstimatorService() error {
	var svc ports.FeeEstimator
	var err error
	switch c.FeeEstimatorType {
	case "esplora":
		svc, err = feeestimator.NewWebAPIEstimator(c.esplora)
	case "static":
		svc, err = feeestimator.NewStaticEstimator(c.StaticFeeRate)
	default:
		err = fmt.Errorf("unknown fee estimator type")
	}
	if err != nil {
		return err
	}

	c.feeEstimator = svc
	return nil
}

func (c *Config) eventBusService() error {
	var svc ports.EventBus
	var err error
	switch c.EventBusType {
	case "inmemory":
		svc = watermillbus.NewService(watermill.NewStdLogger(false, false))
	case "redis":
		svc, err = redisbus.NewService(c.RedisURL)
	default:
		err = fmt.Errorf("unknown event bus type")
	}
	if err != nil {
		return err
	}

	c.eventBus = svc
	return nil
}

func (c *Config) schedulerService() error {
	c.scheduler = scheduler.NewScheduler()
	return nil
}

func (c *Config) registryService() error {
	onchainFactory := application.NewOnchainPayoutProcessorFactory(
		c.repo, c.wallet, c.feeEstimator, c.BroadcastWaitTimeout,
	)

	svc, err := application.NewRegistryService(
		c.GlobalPollInterval, c.MinInterval, c.MaxInterval,
		c.repo, c.eventBus, c.scheduler, onchainFactory,
	)
	if err != nil {
		return err
	}

	c.registry = svc
	return nil
}

func (c *Config) adminService() error {
	c.adminSvc = application.NewAdminService(c.registry, c.repo, c.eventBus)
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return strings.Join(types, " | ")
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}
