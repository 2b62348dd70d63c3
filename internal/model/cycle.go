package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusKind names a cycle status variant.
type StatusKind string

const (
	KindNotStarted StatusKind = "not_started"
	KindProcessing StatusKind = "processing"
	KindFinished   StatusKind = "finished"
)

// CycleStatus is one of NotStarted, Processing or Finished.
type CycleStatus interface {
	Kind() StatusKind
	isCycleStatus()
}

// NotStarted waits for CycleStart before the first cycle may run.
type NotStarted struct {
	CycleStart time.Time
}

// Processing is a cycle in progress. Cursor is the last account visited (exclusive resume
// point) and Prices the snapshot every page of the cycle rebalances against.
type Processing struct {
	CycleStarted time.Time
	Cursor       string
	Prices       PriceTable
}

// Finished waits for NextCycle.
type Finished struct {
	NextCycle time.Time
}

func (NotStarted) Kind() StatusKind { return KindNotStarted }
func (Processing) Kind() StatusKind { return KindProcessing }
func (Finished) Kind() StatusKind   { return KindFinished }

func (NotStarted) isCycleStatus() {}
func (Processing) isCycleStatus() {}
func (Finished) isCycleStatus()   {}

type statusEnvelope struct {
	Kind         StatusKind `json:"kind"`
	CycleStart   *time.Time `json:"cycle_start,omitempty"`
	CycleStarted *time.Time `json:"cycle_started,omitempty"`
	Cursor       string     `json:"cursor,omitempty"`
	Prices       PriceTable `json:"prices,omitempty"`
	NextCycle    *time.Time `json:"next_cycle,omitempty"`
}

// MarshalStatus encodes a status as a tagged JSON object.
func MarshalStatus(s CycleStatus) ([]byte, error) {
	var env statusEnvelope
	switch v := s.(type) {
	case NotStarted:
		env = statusEnvelope{Kind: KindNotStarted, CycleStart: &v.CycleStart}
	case Processing:
		env = statusEnvelope{Kind: KindProcessing, CycleStarted: &v.CycleStarted, Cursor: v.Cursor, Prices: v.Prices}
	case Finished:
		env = statusEnvelope{Kind: KindFinished, NextCycle: &v.NextCycle}
	default:
		return nil, fmt.Errorf("unknown cycle status %T", s)
	}
	return json.Marshal(env)
}

// UnmarshalStatus decodes what MarshalStatus produced.
func UnmarshalStatus(data []byte) (CycleStatus, error) {
	var env statusEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode cycle status: %w", err)
	}
	switch env.Kind {
	case KindNotStarted:
		if env.CycleStart == nil {
			return nil, fmt.Errorf("decode cycle status: missing cycle_start")
		}
		return NotStarted{CycleStart: env.CycleStart.UTC()}, nil
	case KindProcessing:
		if env.CycleStarted == nil {
			return nil, fmt.Errorf("decode cycle status: missing cycle_started")
		}
		return Processing{CycleStarted: env.CycleStarted.UTC(), Cursor: env.Cursor, Prices: env.Prices}, nil
	case KindFinished:
		if env.NextCycle == nil {
			return nil, fmt.Errorf("decode cycle status: missing next_cycle")
		}
		return Finished{NextCycle: env.NextCycle.UTC()}, nil
	default:
		return nil, fmt.Errorf("decode cycle status: unknown kind %q", env.Kind)
	}
}
