package httpservice

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ark-network/payoutd/internal/core/application"
	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type handler struct {
	adminSvc application.AdminService
}

// NewRouter returns the admin api routes served by the daemon.
func NewRouter(adminSvc application.AdminService) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &handler{adminSvc}

	v1 := router.Group("/v1")
	v1.GET("/payout-processors/types", h.listProcessorTypes)

	store := v1.Group("/stores/:store")
	store.GET("/payout-processors", h.listProcessors)
	store.PUT("/payout-processors/:method/:processor", h.setProcessor)
	store.DELETE("/payout-processors/:method/:processor", h.removeProcessor)
	store.GET("/payouts", h.listPayouts)
	store.POST("/payouts", h.approvePayout)
	store.POST("/payouts/:id/reset", h.resetPayout)
	store.PUT("/payment-methods/:method", h.setPaymentMethod)

	return router
}

func (h *handler) listProcessorTypes(c *gin.Context) {
	types := h.adminSvc.ProcessorTypes()
	list := make([]processorType, 0, len(types))
	for _, t := range types {
		list = append(list, newProcessorType(t))
	}
	c.JSON(http.StatusOK, gin.H{"types": list})
}

func (h *handler) listProcessors(c *gin.Context) {
	configs, err := h.adminSvc.ListProcessors(c.Request.Context(), c.Param("store"))
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	list := make([]processor, 0, len(configs))
	for _, cfg := range configs {
		list = append(list, newProcessor(cfg))
	}
	c.JSON(http.StatusOK, gin.H{"processors": list})
}

func (h *handler) setProcessor(c *gin.Context) {
	methodId, err := domain.ParsePayoutMethodId(c.Param("method"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var req processorBlob
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	blob, err := req.toDomain()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	config, err := h.adminSvc.SetProcessor(
		c.Request.Context(), c.Param("store"), methodId, c.Param("processor"), blob,
	)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"processor": newProcessor(*config)})
}

func (h *handler) removeProcessor(c *gin.Context) {
	methodId, err := domain.ParsePayoutMethodId(c.Param("method"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.adminSvc.RemoveProcessor(
		c.Request.Context(), c.Param("store"), methodId, c.Param("processor"),
	); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

func (h *handler) listPayouts(c *gin.Context) {
	var states []domain.PayoutState
	for _, s := range c.QueryArray("state") {
		for _, str := range strings.Split(s, ",") {
			state, err := domain.ParsePayoutState(str)
			if err != nil {
				abortWithError(c, http.StatusBadRequest, err)
				return
			}
			states = append(states, state)
		}
	}

	payouts, err := h.adminSvc.ListPayouts(c.Request.Context(), c.Param("store"), states)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}

	list := make([]payout, 0, len(payouts))
	for _, p := range payouts {
		list = append(list, newPayout(p))
	}
	c.JSON(http.StatusOK, gin.H{"payouts": list})
}

func (h *handler) approvePayout(c *gin.Context) {
	var req approvePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	methodId, err := domain.ParsePayoutMethodId(req.PayoutMethodId)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	p, err := h.adminSvc.ApprovePayout(c.Request.Context(), application.ApprovePayoutRequest{
		StoreId:        c.Param("store"),
		PullPaymentId:  req.PullPaymentId,
		PayoutMethodId: methodId,
		Destination:    req.Destination,
		Amount:         amount,
	})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout": newPayout(*p)})
}

func (h *handler) resetPayout(c *gin.Context) {
	p, err := h.adminSvc.ResetPayout(c.Request.Context(), c.Param("store"), c.Param("id"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payout": newPayout(*p)})
}

func (h *handler) setPaymentMethod(c *gin.Context) {
	methodId, err := domain.ParsePayoutMethodId(c.Param("method"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	var req setPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}

	if err := h.adminSvc.SetPaymentMethod(c.Request.Context(), domain.StorePaymentMethod{
		StoreId:         c.Param("store"),
		PaymentMethodId: methodId,
		AccountKey:      req.AccountKey,
		Enabled:         req.Enabled,
	}); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// abortWithError overrides the given status for errors with a well known
// meaning.
func abortWithError(c *gin.Context, status int, err error) {
	switch {
	case errors.Is(err, domain.ErrProcessorNotFound), errors.Is(err, domain.ErrPayoutNotFound):
		status = http.StatusNotFound
	case errors.Is(err, application.ErrRegistryNotStarted),
		errors.Is(err, application.ErrRegistryStopped),
		errors.Is(err, application.ErrWalletUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).Warnf("%s %s failed", c.Request.Method, c.FullPath())
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
