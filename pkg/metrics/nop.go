package metrics

import "SmartTrader/internal/domain/models"

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordCycle(string, string, float64)               {}
func (Nop) RecordDecision(string, models.Action)              {}
func (Nop) RecordProviderResult(string, string, bool)         {}
func (Nop) RecordFallback(string, float64)                    {}
func (Nop) RecordTradeEvent(string, models.EventType, string) {}
func (Nop) RecordEquity(string, float64, float64)             {}
func (Nop) RecordMessageSent(string, string)                  {}
func (Nop) RecordError(string)                                {}
func (Nop) RecordLastPrice(string, float64)                   {}
func (Nop) RecordLatency(string, float64)                     {}
