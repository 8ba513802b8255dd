package internal

import "sync/atomic"

type Stats struct {
	anycastsSent     atomic.Uint64
	unicastsSent     atomic.Uint64
	unicastsFailed   atomic.Uint64
	dataReceived     atomic.Uint64
	proposesSent     atomic.Uint64
	proposesReceived atomic.Uint64
	finalsSent       atomic.Uint64
	finalsReceived   atomic.Uint64
	delivered        atomic.Uint64
	anomalies        atomic.Uint64
}

type StatsSnapshot struct {
	AnycastsSent     uint64
	UnicastsSent     uint64
	UnicastsFailed   uint64
	DataReceived     uint64
	ProposesSent     uint64
	ProposesReceived uint64
	FinalsSent       uint64
	FinalsReceived   uint64
	Delivered        uint64
	Anomalies        uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncAnycastSent()     { s.anycastsSent.Add(1) }
func (s *Stats) IncUnicastSent()     { s.unicastsSent.Add(1) }
func (s *Stats) IncUnicastFailed()   { s.unicastsFailed.Add(1) }
func (s *Stats) IncDataReceived()    { s.dataReceived.Add(1) }
func (s *Stats) IncProposeSent()     { s.proposesSent.Add(1) }
func (s *Stats) IncProposeReceived() { s.proposesReceived.Add(1) }
func (s *Stats) IncFinalSent()       { s.finalsSent.Add(1) }
func (s *Stats) IncFinalReceived()   { s.finalsReceived.Add(1) }
func (s *Stats) AddDelivered(n int)  { s.delivered.Add(uint64(n)) }
func (s *Stats) IncAnomaly()         { s.anomalies.Add(1) }

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		AnycastsSent:     s.anycastsSent.Load(),
		UnicastsSent:     s.unicastsSent.Load(),
		UnicastsFailed:   s.unicastsFailed.Load(),
		DataReceived:     s.dataReceived.Load(),
		ProposesSent:     s.proposesSent.Load(),
		ProposesReceived: s.proposesReceived.Load(),
		FinalsSent:       s.finalsSent.Load(),
		FinalsReceived:   s.finalsReceived.Load(),
		Delivered:        s.delivered.Load(),
		Anomalies:        s.anomalies.Load(),
	}
}

// AvgUnicastsPerAnycast is zero until the first anycast.
func (s StatsSnapshot) AvgUnicastsPerAnycast() float64 {
	if s.AnycastsSent == 0 {
		return 0
	}
	return float64(s.UnicastsSent) / float64(s.AnycastsSent)
}
