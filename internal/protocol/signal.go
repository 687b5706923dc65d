package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// SignalKind tags the variant carried by a Signal.
type SignalKind int

const (
	KindGotUserMedia SignalKind = iota + 1
	KindBye
	KindOffer
	KindAnswer
	KindCandidate
)

func (k SignalKind) String() string {
	switch k {
	case KindGotUserMedia:
		return "got user media"
	case KindBye:
		return "bye"
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	case KindCandidate:
		return "candidate"
	}
	return fmt.Sprintf("SignalKind(%d)", int(k))
}

const (
	textGotUserMedia = "got user media"
	textBye          = "bye"
)

var (
	ErrUnknownSignal   = errors.New("unknown signal")
	ErrMalformedSignal = errors.New("malformed signal")
)

// SessionDescription is an offer or answer blob. Type is KindOffer or KindAnswer.
type SessionDescription struct {
	Type SignalKind
	SDP  string
}

// Candidate is a trickled ICE candidate. Label is the m-line index and ID the
// media stream identification tag; both are optional on the wire.
type Candidate struct {
	Label     *uint16 `json:"label"`
	ID        *string `json:"id"`
	Candidate string  `json:"candidate"`
}

// Signal is the peer-to-peer message relayed inside an EventMessage envelope.
// Exactly one of Description or Candidate is set for the structured kinds.
type Signal struct {
	Kind        SignalKind
	Description *SessionDescription
	Candidate   *Candidate
}

func GotUserMedia() Signal { return Signal{Kind: KindGotUserMedia} }

func Bye() Signal { return Signal{Kind: KindBye} }

func Offer(sdp string) Signal {
	return Signal{Kind: KindOffer, Description: &SessionDescription{Type: KindOffer, SDP: sdp}}
}

func Answer(sdp string) Signal {
	return Signal{Kind: KindAnswer, Description: &SessionDescription{Type: KindAnswer, SDP: sdp}}
}

func CandidateSignal(c Candidate) Signal {
	return Signal{Kind: KindCandidate, Candidate: &c}
}

type wireDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type wireCandidate struct {
	Type string `json:"type"`
	Candidate
}

func (s Signal) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case KindGotUserMedia:
		return json.Marshal(textGotUserMedia)
	case KindBye:
		return json.Marshal(textBye)
	case KindOffer, KindAnswer:
		if s.Description == nil {
			return nil, fmt.Errorf("%w: %s without description", ErrMalformedSignal, s.Kind)
		}
		return json.Marshal(wireDescription{Type: s.Kind.String(), SDP: s.Description.SDP})
	case KindCandidate:
		if s.Candidate == nil {
			return nil, fmt.Errorf("%w: candidate without body", ErrMalformedSignal)
		}
		return json.Marshal(wireCandidate{Type: s.Kind.String(), Candidate: *s.Candidate})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, s.Kind)
}

func (s *Signal) UnmarshalJSON(data []byte) error {
	sig, err := DecodeSignal(data)
	if err != nil {
		return err
	}
	*s = sig
	return nil
}

// DecodeSignal turns the loosely typed relayed payload into a Signal. It is the
// only place that inspects the raw shape; everything downstream switches on Kind.
func DecodeSignal(data []byte) (Signal, error) {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return Signal{}, fmt.Errorf("%w: empty payload", ErrMalformedSignal)
	}

	if data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		switch text {
		case textGotUserMedia:
			return GotUserMedia(), nil
		case textBye:
			return Bye(), nil
		}
		return Signal{}, fmt.Errorf("%w: %q", ErrUnknownSignal, text)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	switch head.Type {
	case "offer", "answer":
		var d wireDescription
		if err := json.Unmarshal(data, &d); err != nil {
			return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		if d.SDP == "" {
			return Signal{}, fmt.Errorf("%w: %s without sdp", ErrMalformedSignal, d.Type)
		}
		if d.Type == "offer" {
			return Offer(d.SDP), nil
		}
		return Answer(d.SDP), nil

	case "candidate":
		var c wireCandidate
		if err := json.Unmarshal(data, &c); err != nil {
			return Signal{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
		}
		if c.Candidate.Candidate == "" {
			return Signal{}, fmt.Errorf("%w: empty candidate", ErrMalformedSignal)
		}
		return CandidateSignal(c.Candidate), nil
	}

	return Signal{}, fmt.Errorf("%w: type %q", ErrUnknownSignal, head.Type)
}
