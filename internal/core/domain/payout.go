package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxPayoutErrorCount is the number of construction failures after which a
// processor stops picking up a payout automatically.
const MaxPayoutErrorCount = 10

type PayoutState string

const (
	PayoutStateAwaitingPayment PayoutState = "AwaitingPayment"
	PayoutStateInProgress      PayoutState = "InProgress"
	PayoutStateCompleted       PayoutState = "Completed"
	PayoutStateCancelled       PayoutState = "Cancelled"
)

func ParsePayoutState(str string) (PayoutState, error) {
	state := PayoutState(str)
	switch state {
	case PayoutStateAwaitingPayment, PayoutStateInProgress,
		PayoutStateCompleted, PayoutStateCancelled:
		return state, nil
	default:
		return "", fmt.Errorf("unknown payout state %s", str)
	}
}

// PayoutBlob holds the automated processing bookkeeping of a payout.
type PayoutBlob struct {
	ErrorCount         int
	DisabledProcessors []string
}

type Payout struct {
	Id             string
	StoreId        string
	PullPaymentId  string
	PayoutMethodId PayoutMethodId
	Destination    string
	Amount         decimal.Decimal
	State          PayoutState
	Proof          json.RawMessage
	Blob           PayoutBlob
	CreatedAt      time.Time

	dirty       bool
	storedState PayoutState
}

func NewPayout(
	storeId, pullPaymentId string, payoutMethodId PayoutMethodId,
	destination string, amount decimal.Decimal,
) (*Payout, error) {
	p := &Payout{
		Id:             uuid.New().String(),
		StoreId:        storeId,
		PullPaymentId:  pullPaymentId,
		PayoutMethodId: payoutMethodId,
		Destination:    destination,
		Amount:         amount,
		State:          PayoutStateAwaitingPayment,
		CreatedAt:      time.Now(),
		storedState:    PayoutStateAwaitingPayment,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// IsDirty returns whether the payout changed since it was loaded.
func (p *Payout) IsDirty() bool {
	return p.dirty
}

// StoredState is the state the payout had when it was last read from or
// written to the repository. Updates only apply if the stored row is still
// in this state.
func (p *Payout) StoredState() PayoutState {
	return p.storedState
}

// MarkPersisted records that the payout matches the stored row.
func (p *Payout) MarkPersisted() {
	p.storedState = p.State
	p.dirty = false
}

func (p *Payout) IsProcessorDisabled(processor string) bool {
	return slices.Contains(p.Blob.DisabledProcessors, processor)
}

// IncrementErrorCount records a construction failure and latches the given
// processor off once MaxPayoutErrorCount is reached. It returns whether the
// processor is disabled for this payout.
func (p *Payout) IncrementErrorCount(processor string) bool {
	p.Blob.ErrorCount++
	p.dirty = true
	if p.Blob.ErrorCount >= MaxPayoutErrorCount {
		p.DisableProcessor(processor)
	}
	return p.IsProcessorDisabled(processor)
}

func (p *Payout) DisableProcessor(processor string) {
	if p.IsProcessorDisabled(processor) {
		return
	}
	p.Blob.DisabledProcessors = append(p.Blob.DisabledProcessors, processor)
	p.dirty = true
}

// ResetProcessors clears the error count and re-enables every processor.
func (p *Payout) ResetProcessors() {
	p.Blob = PayoutBlob{}
	p.dirty = true
}

func (p *Payout) MarkInProgress(proof OnchainPayoutProof) error {
	if p.State != PayoutStateAwaitingPayment {
		return fmt.Errorf("payout %s is %s, not %s", p.Id, p.State, PayoutStateAwaitingPayment)
	}
	buf, err := json.Marshal(proof)
	if err != nil {
		return err
	}
	p.State = PayoutStateInProgress
	p.Proof = buf
	p.dirty = true
	return nil
}

// Cancel moves a payout that was not paid yet to Cancelled.
func (p *Payout) Cancel() error {
	if p.State != PayoutStateAwaitingPayment && p.State != PayoutStateInProgress {
		return fmt.Errorf("payout %s is %s and cannot be cancelled", p.Id, p.State)
	}
	p.State = PayoutStateCancelled
	p.dirty = true
	return nil
}

// RevertToAwaitingPayment undoes MarkInProgress.
func (p *Payout) RevertToAwaitingPayment() {
	p.State = PayoutStateAwaitingPayment
	p.Proof = nil
	p.dirty = true
}

func (p *Payout) OnchainProof() (*OnchainPayoutProof, error) {
	if len(p.Proof) <= 0 {
		return nil, nil
	}
	var proof OnchainPayoutProof
	if err := json.Unmarshal(p.Proof, &proof); err != nil {
		return nil, fmt.Errorf("invalid proof for payout %s: %w", p.Id, err)
	}
	return &proof, nil
}

func (p *Payout) validate() error {
	if len(p.StoreId) <= 0 {
		return fmt.Errorf("missing store id")
	}
	if len(p.PayoutMethodId) <= 0 {
		return fmt.Errorf("missing payout method id")
	}
	if len(p.Destination) <= 0 {
		return fmt.Errorf("missing destination")
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	return nil
}

// OnchainPayoutProof documents the transaction paying a payout.
type OnchainPayoutProof struct {
	TransactionId string   `json:"transactionId"`
	Candidates    []string `json:"candidates"`
	Accounted     bool     `json:"accounted"`
}
