package domain

import (
	"encoding/json"
	"fmt"
)

const (
	PayoutProcessorUpdatedTopic    = "payout-processor-updated"
	PayoutProcessorRemovedTopic    = "payout-processor-removed"
	PayoutApprovedTopic            = "payout-approved"
	PayoutsAwaitingProcessingTopic = "payouts-awaiting-processing"
)

type Event interface {
	Topic() string
	isEvent()
}

func (e PayoutProcessorUpdated) isEvent()    {}
func (e PayoutProcessorRemoved) isEvent()    {}
func (e PayoutApproved) isEvent()            {}
func (e PayoutsAwaitingProcessing) isEvent() {}

func (e PayoutProcessorUpdated) Topic() string    { return PayoutProcessorUpdatedTopic }
func (e PayoutProcessorRemoved) Topic() string    { return PayoutProcessorRemovedTopic }
func (e PayoutApproved) Topic() string            { return PayoutApprovedTopic }
func (e PayoutsAwaitingProcessing) Topic() string { return PayoutsAwaitingProcessingTopic }

// PayoutProcessorUpdated is emitted whenever a processor config is created
// or changed. Origin identifies the emitting process.
type PayoutProcessorUpdated struct {
	Origin    string
	Processor PayoutProcessor
}

type PayoutProcessorRemoved struct {
	Origin    string
	Processor PayoutProcessor
}

type PayoutApproved struct {
	PayoutId       string
	StoreId        string
	PayoutMethodId PayoutMethodId
}

type PayoutsAwaitingProcessing struct {
	StoreId   string
	PayoutIds []string
}

type eventEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func EncodeEvent(event Event) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(eventEnvelope{event.Topic(), payload})
}

func DecodeEvent(buf []byte) (Event, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(buf, &envelope); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	var event Event
	switch envelope.Topic {
	case PayoutProcessorUpdatedTopic:
		var e PayoutProcessorUpdated
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	case PayoutProcessorRemovedTopic:
		var e PayoutProcessorRemoved
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	case PayoutApprovedTopic:
		var e PayoutApproved
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	case PayoutsAwaitingProcessingTopic:
		var e PayoutsAwaitingProcessing
		if err := json.Unmarshal(envelope.Payload, &e); err != nil {
			return nil, err
		}
		event = e
	default:
		return nil, fmt.Errorf("unknown event topic %s", envelope.Topic)
	}
	return event, nil
}
