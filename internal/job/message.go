package job

import (
	"encoding/json"
	"fmt"
)

// Message is one of the closed set of payloads carried on the work queue.
type Message interface {
	queueMessage()
}

// RequestProof asks a worker to generate one proof over a time window. The
// overall start/end timestamps always bound the input data; the per-metric
// ranges narrow the window for that specific computation.
type RequestProof struct {
	JobID                      string `json:"job_id"`
	JobGroupID                 string `json:"job_group_id"`
	Kind                       Kind   `json:"kind,omitempty"`
	StartTimestamp             int64  `json:"start_timestamp"`
	EndTimestamp               int64  `json:"end_timestamp"`
	TwapStartTimestamp         *int64 `json:"twap_start_timestamp,omitempty"`
	TwapEndTimestamp           *int64 `json:"twap_end_timestamp,omitempty"`
	ReservePriceStartTimestamp *int64 `json:"reserve_price_start_timestamp,omitempty"`
	ReservePriceEndTimestamp   *int64 `json:"reserve_price_end_timestamp,omitempty"`
	MaxReturnStartTimestamp    *int64 `json:"max_return_start_timestamp,omitempty"`
	MaxReturnEndTimestamp      *int64 `json:"max_return_end_timestamp,omitempty"`
}

// ProofGenerated announces a fully completed job group to downstream
// consumers. Results maps each sub-job kind to its stored result payload.
type ProofGenerated struct {
	JobGroupID string                   `json:"job_group_id"`
	Results    map[Kind]json.RawMessage `json:"results"`
}

func (RequestProof) queueMessage()   {}
func (ProofGenerated) queueMessage() {}

// NewRequestProof builds the wire message for a single sub-job, populating
// both the overall window and the kind-specific range.
func NewRequestProof(req Request) *RequestProof {
	m := &RequestProof{
		JobID:          req.JobID,
		JobGroupID:     req.JobGroupID,
		Kind:           req.Kind,
		StartTimestamp: req.WindowStart,
		EndTimestamp:   req.WindowEnd,
	}
	start, end := req.WindowStart, req.WindowEnd
	switch req.Kind {
	case KindTwap:
		m.TwapStartTimestamp, m.TwapEndTimestamp = &start, &end
	case KindReservePrice:
		m.ReservePriceStartTimestamp, m.ReservePriceEndTimestamp = &start, &end
	case KindMaxReturn:
		m.MaxReturnStartTimestamp, m.MaxReturnEndTimestamp = &start, &end
	}
	return m
}

// Request converts the message into the internal work description. The kind
// tag wins when present; otherwise it is inferred from whichever per-metric
// range is populated. Ambiguous or inverted windows are invalid.
func (m *RequestProof) Request() (Request, error) {
	if m.JobID == "" {
		return Request{}, fmt.Errorf("%w: missing job_id", ErrInvalidMessage)
	}
	if m.JobGroupID == "" {
		return Request{}, fmt.Errorf("%w: missing job_group_id", ErrInvalidMessage)
	}

	kind := m.Kind
	if kind == "" {
		var err error
		kind, err = m.inferKind()
		if err != nil {
			return Request{}, err
		}
	}
	if !kind.Valid() {
		return Request{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}

	start, end := m.window(kind)
	if start >= end {
		return Request{}, fmt.Errorf("%w: invalid time range [%d,%d)", ErrInvalidMessage, start, end)
	}

	return Request{
		JobID:       m.JobID,
		JobGroupID:  m.JobGroupID,
		Kind:        kind,
		WindowStart: start,
		WindowEnd:   end,
	}, nil
}

func (m *RequestProof) inferKind() (Kind, error) {
	var kinds []Kind
	if m.TwapStartTimestamp != nil {
		kinds = append(kinds, KindTwap)
	}
	if m.ReservePriceStartTimestamp != nil {
		kinds = append(kinds, KindReservePrice)
	}
	if m.MaxReturnStartTimestamp != nil {
		kinds = append(kinds, KindMaxReturn)
	}
	if len(kinds) != 1 {
		return "", fmt.Errorf("%w: cannot infer kind from %d populated ranges", ErrInvalidMessage, len(kinds))
	}
	return kinds[0], nil
}

// window returns the effective range for kind, falling back to the overall
// start/end when the specific range is absent.
func (m *RequestProof) window(kind Kind) (int64, int64) {
	start, end := m.StartTimestamp, m.EndTimestamp
	var s, e *int64
	switch kind {
	case KindTwap:
		s, e = m.TwapStartTimestamp, m.TwapEndTimestamp
	case KindReservePrice:
		s, e = m.ReservePriceStartTimestamp, m.ReservePriceEndTimestamp
	case KindMaxReturn:
		s, e = m.MaxReturnStartTimestamp, m.MaxReturnEndTimestamp
	}
	if s != nil {
		start = *s
	}
	if e != nil {
		end = *e
	}
	return start, end
}

// EncodeMessage serializes a queue message to its JSON wire form.
func EncodeMessage(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode queue message: %w", err)
	}
	return body, nil
}

// DecodeMessage parses a queue payload into one of the known message kinds.
// The wire format is untagged, so the decoder probes the discriminating
// fields: a results object marks ProofGenerated, a job_id marks RequestProof.
func DecodeMessage(body []byte) (Message, error) {
	var probe struct {
		JobID   string          `json:"job_id"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	switch {
	case len(probe.Results) > 0:
		var m ProofGenerated
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		if m.JobGroupID == "" {
			return nil, fmt.Errorf("%w: proof_generated missing job_group_id", ErrInvalidMessage)
		}
		return &m, nil
	case probe.JobID != "":
		var m RequestProof
		if err := json.Unmarshal(body, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		return &m, nil
	default:
		return nil, fmt.Errorf("%w: unrecognized message shape", ErrInvalidMessage)
	}
}
