package httpservice

import (
	"encoding/json"
	"time"

	"github.com/ark-network/payoutd/internal/core/application"
	"github.com/ark-network/payoutd/internal/core/domain"
	"github.com/shopspring/decimal"
)

type processorBlob struct {
	IntervalSeconds            int64  `json:"intervalSeconds"`
	ProcessNewPayoutsInstantly bool   `json:"processNewPayoutsInstantly"`
	Threshold                  string `json:"threshold,omitempty"`
	FeeTargetBlock             uint32 `json:"feeTargetBlock,omitempty"`
}

func (b processorBlob) toDomain() (domain.ProcessorBlob, error) {
	threshold := decimal.Zero
	if len(b.Threshold) > 0 {
		t, err := decimal.NewFromString(b.Threshold)
		if err != nil {
			return domain.ProcessorBlob{}, err
		}
		threshold = t
	}
	return domain.ProcessorBlob{
		Interval:                   time.Duration(b.IntervalSeconds) * time.Second,
		ProcessNewPayoutsInstantly: b.ProcessNewPayoutsInstantly,
		Threshold:                  threshold,
		FeeTargetBlock:             b.FeeTargetBlock,
	}, nil
}

type processor struct {
	Id             string `json:"id"`
	StoreId        string `json:"storeId"`
	PayoutMethodId string `json:"payoutMethodId"`
	Processor      string `json:"processor"`
	processorBlob
}

func newProcessor(p domain.PayoutProcessor) processor {
	return processor{
		Id:             p.Id,
		StoreId:        p.StoreId,
		PayoutMethodId: p.PayoutMethodId.String(),
		Processor:      p.Processor,
		processorBlob: processorBlob{
			IntervalSeconds:            int64(p.Blob.Interval / time.Second),
			ProcessNewPayoutsInstantly: p.Blob.ProcessNewPayoutsInstantly,
			Threshold:                  p.Blob.Threshold.String(),
			FeeTargetBlock:             p.Blob.FeeTargetBlock,
		},
	}
}

type payout struct {
	Id                 string          `json:"id"`
	StoreId            string          `json:"storeId"`
	PullPaymentId      string          `json:"pullPaymentId,omitempty"`
	PayoutMethodId     string          `json:"payoutMethodId"`
	Destination        string          `json:"destination"`
	Amount             string          `json:"amount"`
	State              string          `json:"state"`
	Proof              json.RawMessage `json:"proof,omitempty"`
	ErrorCount         int             `json:"errorCount"`
	DisabledProcessors []string        `json:"disabledProcessors,omitempty"`
	CreatedAt          int64           `json:"createdAt"`
}

func newPayout(p domain.Payout) payout {
	return payout{
		Id:                 p.Id,
		StoreId:            p.StoreId,
		PullPaymentId:      p.PullPaymentId,
		PayoutMethodId:     p.PayoutMethodId.String(),
		Destination:        p.Destination,
		Amount:             p.Amount.String(),
		State:              string(p.State),
		Proof:              p.Proof,
		ErrorCount:         p.Blob.ErrorCount,
		DisabledProcessors: p.Blob.DisabledProcessors,
		CreatedAt:          p.CreatedAt.Unix(),
	}
}

type approvePayoutRequest struct {
	PullPaymentId  string `json:"pullPaymentId"`
	PayoutMethodId string `json:"payoutMethodId"`
	Destination    string `json:"destination"`
	Amount         string `json:"amount"`
}

type setPaymentMethodRequest struct {
	AccountKey string `json:"accountKey"`
	Enabled    bool   `json:"enabled"`
}

type processorType struct {
	Processor     string   `json:"processor"`
	PayoutMethods []string `json:"payoutMethods"`
}

func newProcessorType(t application.ProcessorType) processorType {
	methods := make([]string, 0, len(t.PayoutMethods))
	for _, m := range t.PayoutMethods {
		methods = append(methods, m.String())
	}
	return processorType{t.Processor, methods}
}
