package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	OnChainAutomatedPayoutSenderFactory = "OnChainAutomatedPayoutSenderFactory"

	DefaultProcessorInterval = time.Hour
	DefaultFeeTargetBlock    = 1
)

// ProcessorBlob is the per-processor settings edited by the operator.
type ProcessorBlob struct {
	Interval                   time.Duration   `json:"interval"`
	ProcessNewPayoutsInstantly bool            `json:"processNewPayoutsInstantly"`
	Threshold                  decimal.Decimal `json:"threshold"`
	FeeTargetBlock             uint32          `json:"feeTargetBlock,omitempty"`
}

// Normalize bounds the interval to the given range and fills defaults.
func (b ProcessorBlob) Normalize(minInterval, maxInterval time.Duration) ProcessorBlob {
	if b.Interval <= 0 {
		b.Interval = DefaultProcessorInterval
	}
	if b.Interval < minInterval {
		b.Interval = minInterval
	}
	if maxInterval > 0 && b.Interval > maxInterval {
		b.Interval = maxInterval
	}
	if b.Threshold.IsNegative() {
		b.Threshold = decimal.Zero
	}
	if b.FeeTargetBlock < DefaultFeeTargetBlock {
		b.FeeTargetBlock = DefaultFeeTargetBlock
	}
	return b
}

func (b ProcessorBlob) Equal(other ProcessorBlob) bool {
	return b.Interval == other.Interval &&
		b.ProcessNewPayoutsInstantly == other.ProcessNewPayoutsInstantly &&
		b.Threshold.Equal(other.Threshold) &&
		b.FeeTargetBlock == other.FeeTargetBlock
}

func (b ProcessorBlob) Serialize() ([]byte, error) {
	return json.Marshal(b)
}

func DeserializeProcessorBlob(buf []byte) (ProcessorBlob, error) {
	var blob ProcessorBlob
	if len(buf) <= 0 {
		return blob, nil
	}
	if err := json.Unmarshal(buf, &blob); err != nil {
		return blob, fmt.Errorf("invalid processor blob: %w", err)
	}
	return blob, nil
}

// PayoutProcessor is the persisted config of an automated processor bound to
// one store and one payout method.
type PayoutProcessor struct {
	Id             string
	StoreId        string
	PayoutMethodId PayoutMethodId
	Processor      string
	Blob           ProcessorBlob
}

func NewPayoutProcessor(
	storeId string, payoutMethodId PayoutMethodId, processor string, blob ProcessorBlob,
) (*PayoutProcessor, error) {
	p := &PayoutProcessor{
		Id:             uuid.New().String(),
		StoreId:        storeId,
		PayoutMethodId: payoutMethodId,
		Processor:      processor,
		Blob:           blob,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p PayoutProcessor) Validate() error {
	if len(p.StoreId) <= 0 {
		return fmt.Errorf("missing store id")
	}
	if len(p.PayoutMethodId) <= 0 {
		return fmt.Errorf("missing payout method id")
	}
	if len(p.Processor) <= 0 {
		return fmt.Errorf("missing processor type")
	}
	return nil
}

// Key identifies the config by (store, payout method, processor type).
func (p PayoutProcessor) Key() ProcessorKey {
	return ProcessorKey{p.StoreId, p.PayoutMethodId, p.Processor}
}

type ProcessorKey struct {
	StoreId        string
	PayoutMethodId PayoutMethodId
	Processor      string
}

func (k ProcessorKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.StoreId, k.PayoutMethodId, k.Processor)
}
