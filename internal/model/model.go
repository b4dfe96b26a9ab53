// Package model holds the wire-level data types shared by every stage of the
// flow analytics pipeline: envelopes, raw market events, and the records the
// pipeline emits (flow packets, classifier hits, alerts, dark inferences).
package model

// Envelope carries the fields every external event and every emitted record
// share. SourceTs is the venue's own timestamp; IngestTs is wall-clock time
// when this process read the event; Seq is monotonic per source.
type Envelope struct {
	SourceTS int64  `json:"source_ts"`
	IngestTS int64  `json:"ingest_ts"`
	Seq      int64  `json:"seq"`
	TraceID  string `json:"trace_id"`
}

// OrderKey implements store.Row so envelopes sort by (SourceTS, Seq).
func (e Envelope) OrderKey() (ts int64, seq int64) {
	return e.SourceTS, e.Seq
}

// OptionPrint is a single option trade print. Immutable once constructed;
// identity is (TraceID, Seq) per the envelope.
type OptionPrint struct {
	Envelope
	TS               int64    `json:"ts"`
	OptionContractID string   `json:"option_contract_id"`
	Price            float64  `json:"price"`
	Size             float64  `json:"size"`
	Exchange         string   `json:"exchange"`
	Conditions       []string `json:"conditions,omitempty"`
}

// OptionNBBO is a national-best-bid-offer update for one option contract.
type OptionNBBO struct {
	Envelope
	TS               int64   `json:"ts"`
	OptionContractID string  `json:"option_contract_id"`
	Bid              float64 `json:"bid"`
	Ask              float64 `json:"ask"`
	BidSize          float64 `json:"bid_size"`
	AskSize          float64 `json:"ask_size"`
}

// EquityPrint is a single equity trade print.
type EquityPrint struct {
	Envelope
	TS              int64   `json:"ts"`
	UnderlyingID    string  `json:"underlying_id"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	Exchange        string  `json:"exchange"`
	OffExchangeFlag bool    `json:"off_exchange_flag"`
}

// EquityQuote is a top-of-book quote for one underlying.
type EquityQuote struct {
	Envelope
	TS           int64   `json:"ts"`
	UnderlyingID string  `json:"underlying_id"`
	Bid          float64 `json:"bid"`
	Ask          float64 `json:"ask"`
}

// Placement is the bucket a trade printed into relative to the posted market.
type Placement string

const (
	PlacementAA      Placement = "AA"
	PlacementA       Placement = "A"
	PlacementMid     Placement = "MID"
	PlacementB       Placement = "B"
	PlacementBB      Placement = "BB"
	PlacementStale   Placement = "STALE"
	PlacementMissing Placement = "MISSING"
)

// EquityPrintJoin is an equity print joined against the equity-quote cache.
type EquityPrintJoin struct {
	Envelope
	ID              string    `json:"id"`
	UnderlyingID    string    `json:"underlying_id"`
	Price           float64   `json:"price"`
	Size            float64   `json:"size"`
	OffExchangeFlag bool      `json:"off_exchange_flag"`
	Placement       Placement `json:"placement"`
	Bid             float64   `json:"bid,omitempty"`
	Ask             float64   `json:"ask,omitempty"`
	Mid             float64   `json:"mid,omitempty"`
	Spread          float64   `json:"spread,omitempty"`
	QuoteFresh      bool      `json:"quote_fresh"`
}

// PacketKind distinguishes per-contract packets from structure packets.
type PacketKind string

const (
	PacketKindContract  PacketKind = "contract"
	PacketKindStructure PacketKind = "structure"
)

// FlowPacket is the clustered, enriched representation of a burst of prints.
type FlowPacket struct {
	Envelope
	ID          string                 `json:"id"`
	Kind        PacketKind             `json:"packet_kind"`
	Members     []string               `json:"members"`
	Features    map[string]any         `json:"features"`
	JoinQuality map[string]any         `json:"join_quality"`
	Extra       map[string]interface{} `json:"-"` // scratch space, never serialized
}

// Direction is the classifier/alert directional bias.
type Direction string

const (
	DirectionBullish Direction = "bullish"
	DirectionBearish Direction = "bearish"
	DirectionNeutral Direction = "neutral"
)

// ClassifierHit is one classifier's verdict on a packet.
type ClassifierHit struct {
	Envelope
	ClassifierID string    `json:"classifier_id"`
	PacketID     string    `json:"packet_id"`
	Confidence   float64   `json:"confidence"`
	Direction    Direction `json:"direction"`
	Explanations []string  `json:"explanations"`
}

// Severity is the alert severity bucket.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AlertEvent aggregates a packet's hits into a single scored alert.
type AlertEvent struct {
	Envelope
	PacketID     string          `json:"packet_id"`
	Score        float64         `json:"score"`
	Severity     Severity        `json:"severity"`
	Hits         []ClassifierHit `json:"hits"`
	EvidenceRefs []string        `json:"evidence_refs"`
}

// DarkEventType enumerates the dark-inference outcomes.
type DarkEventType string

const (
	DarkAbsorbedBlock       DarkEventType = "absorbed_block"
	DarkStealthAccumulation DarkEventType = "stealth_accumulation"
	DarkDistribution        DarkEventType = "distribution"
)

// InferredDark is a dark-pool inference event on an underlying.
type InferredDark struct {
	Envelope
	Type         DarkEventType `json:"type"`
	UnderlyingID string        `json:"underlying_id"`
	Confidence   float64       `json:"confidence"`
	EvidenceRefs []string      `json:"evidence_refs"`
}
