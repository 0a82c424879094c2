package httpservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ark-network/payoutd/internal/config"
	interfaces "github.com/ark-network/payoutd/internal/interface"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

const shutdownTimeout = 10 * time.Second

type service struct {
	config    Config
	appConfig *config.Config
	server    *http.Server
}

func NewService(
	svcConfig Config, appConfig *config.Config,
) (interfaces.Service, error) {
	if err := svcConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid service config: %s", err)
	}
	if err := appConfig.Validate(); err != nil {
		return nil, fmt.Errorf("invalid app config: %s", err)
	}
	return &service{config: svcConfig, appConfig: appConfig}, nil
}

func (s *service) Start() error {
	if err := s.appConfig.RegistryService().Start(context.Background()); err != nil {
		return fmt.Errorf("failed to start payout processors: %s", err)
	}
	log.Debug("payout processor registry started")

	s.server = &http.Server{
		Addr:    s.config.address(),
		Handler: NewRouter(s.appConfig.AdminService()),
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("admin api stopped unexpectedly")
		}
	}()
	log.Infof("admin api listening on %s", s.config.address())
	return nil
}

func (s *service) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// nolint:all
		s.server.Shutdown(ctx)
		log.Debug("admin api stopped")
	}

	s.appConfig.RegistryService().Stop()
	log.Debug("payout processor registry stopped")

	s.appConfig.Close()
	log.Debug("closed app services")
}
