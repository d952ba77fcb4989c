package verify

import (
	"encoding/json"
	"strings"

	"github.com/sirdesai22/checkin-service/internal/models"
)

// PayloadKind tags the scan payload interpretation once at decode time so
// the decision tree never re-sniffs the shape.
type PayloadKind int

const (
	// KindBare means the scanned text did not parse as an identity record
	// and is treated as a plain opaque identifier.
	KindBare PayloadKind = iota
	// KindStructured means the payload is a self-describing identity record
	// with at least uid and name.
	KindStructured
)

// Payload is the decoded scan content.
type Payload struct {
	Kind PayloadKind

	UID     string
	Name    string
	Email   string
	Phone   string
	College string
	Dept    string
	Year    string

	Events   []string
	Payments []models.Payment

	// TransactionID backs the legacy single-event proof-of-payment
	// fallback. Weaker than the payments[] check; kept deliberately for
	// credentials issued before payments[] existed.
	TransactionID string

	Raw string
}

type structuredPayload struct {
	UID           string           `json:"uid"`
	Name          string           `json:"name"`
	Email         string           `json:"email"`
	Phone         string           `json:"phone"`
	College       string           `json:"college"`
	Dept          string           `json:"dept"`
	Year          string           `json:"year"`
	Events        []string         `json:"events"`
	Payments      []models.Payment `json:"payments"`
	TransactionID string           `json:"transactionId"`
}

// DecodePayload never fails: malformed JSON falls back to the bare
// identifier path.
func DecodePayload(raw string) Payload {
	raw = strings.TrimSpace(raw)

	var sp structuredPayload
	if err := json.Unmarshal([]byte(raw), &sp); err != nil || sp.UID == "" || sp.Name == "" {
		return Payload{Kind: KindBare, UID: raw, Raw: raw}
	}
	return Payload{
		Kind:          KindStructured,
		UID:           sp.UID,
		Name:          sp.Name,
		Email:         sp.Email,
		Phone:         sp.Phone,
		College:       sp.College,
		Dept:          sp.Dept,
		Year:          sp.Year,
		Events:        sp.Events,
		Payments:      sp.Payments,
		TransactionID: sp.TransactionID,
		Raw:           raw,
	}
}

// RegisteredFor reports whether the payload's own event list names the event.
func (p Payload) RegisteredFor(event string) bool {
	for _, e := range p.Events {
		if e == event {
			return true
		}
	}
	return false
}

// HasPaymentProof checks the payload-carried evidence of payment for the
// event: a verified payments[] entry covering it, or the legacy fallback of
// a single-event credential carrying a bare transaction id.
func (p Payload) HasPaymentProof(event string) bool {
	for _, pay := range p.Payments {
		if !pay.Verified {
			continue
		}
		for _, name := range pay.EventNames {
			if name == event {
				return true
			}
		}
	}
	if len(p.Events) == 1 && p.Events[0] == event && p.TransactionID != "" {
		return true
	}
	return false
}
