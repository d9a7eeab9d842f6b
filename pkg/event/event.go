// Package event defines the wire contract spoken over the signaling relay.
// Every message is an Envelope addressed to an opaque endpoint id; the relay
// forwards it verbatim and rewrites nothing except the From field. Delivery is
// best effort and unordered across event types, which is why the call engine
// never assumes that an offer arrives before the candidates that belong to it.
package event

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Event names. The left column of each pair is what a client emits, the right
// one is what the other side receives from the relay.
const (
	InitiateCall  = "initiate-call"
	CallInitiated = "call-initiated"
	AcceptCall    = "accept-call"
	CallAccepted  = "call-accepted"
	RejectCall    = "reject-call"
	CallRejected  = "call-rejected"
	EndCall       = "end-call"
	CallEnded     = "call-ended"
	Offer         = "webrtc-offer"
	Answer        = "webrtc-answer"
	ICECandidate  = "webrtc-ice-candidate"
	// PeerStatus is synthesized by the relay to report reachability of an
	// endpoint, so a caller is not left ringing an offline peer.
	PeerStatus = "peer-status"
)

// Envelope is the outer JSON frame of every relay message. To is set by the
// sender, From is stamped by the relay on delivery.
type Envelope struct {
	Event   string          `json:"event"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an addressed envelope with a marshaled payload.
func NewEnvelope(name, to string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}

	return Envelope{Event: name, To: to, Payload: raw}, nil
}

// Decode unmarshals the envelope payload into the given value.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("malformed %s payload: %w", e.Event, err)
	}
	return nil
}

// InitiateCallPayload rings the remote endpoint. The caller introduces itself
// so the callee can render the incoming-call prompt without a directory
// lookup.
type InitiateCallPayload struct {
	CallID      string `json:"callId"`
	IsVideoCall bool   `json:"isVideoCall"`
	CallerName  string `json:"callerName"`
	CallerImage string `json:"callerImage,omitempty"`
}

// AnswerCallPayload is shared by accept-call, reject-call and end-call: the
// call id is all the other side needs to correlate the reaction.
type AnswerCallPayload struct {
	CallID string `json:"callId"`
}

// OfferPayload carries the initiator's session description.
type OfferPayload struct {
	CallID string                    `json:"callId"`
	Offer  webrtc.SessionDescription `json:"offer"`
}

// AnswerPayload carries the receiver's session description.
type AnswerPayload struct {
	CallID string                    `json:"callId"`
	Answer webrtc.SessionDescription `json:"answer"`
}

// CandidatePayload carries one ICE candidate. Candidates flow in both
// directions, many times per call, with no ordering guarantee relative to the
// offer and answer.
type CandidatePayload struct {
	CallID    string                  `json:"callId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// PeerStatusPayload reports whether an endpoint is currently reachable.
type PeerStatusPayload struct {
	EndpointID string `json:"endpointId"`
	Online     bool   `json:"online"`
}
