// Package remote talks to the authoritative registration directory. Every
// call can fail on connectivity; callers must treat an error as "unknown",
// never as "not verified".
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/sirdesai22/checkin-service/internal/models"
)

// PaymentStatus is the answer to "may this person enter a paid gate".
// IsPaid=false with Verified=true means the event is free for this person,
// trivially cleared.
type PaymentStatus struct {
	IsPaid   bool `json:"is_paid"`
	Verified bool `json:"verified"`
}

type Directory struct {
	es   *es.Client
	paid map[string]bool
}

func NewDirectory(client *es.Client, paidEvents []string) *Directory {
	paid := make(map[string]bool, len(paidEvents))
	for _, e := range paidEvents {
		paid[e] = true
	}
	return &Directory{es: client, paid: paid}
}

// GetRegistration fetches the registration document for a uid. A missing
// document is (nil, nil); only transport or server trouble is an error.
func (d *Directory) GetRegistration(ctx context.Context, uid string) (*models.Registration, error) {
	res, err := d.es.Get(IdxRegistrations, uid, d.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("directory get %s: %w", uid, err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("directory get %s: status=%s", uid, res.Status())
	}

	var envelope struct {
		Source models.Registration `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("directory get %s: decode: %w", uid, err)
	}
	if envelope.Source.UID == "" {
		envelope.Source.UID = uid
	}
	return &envelope.Source, nil
}

// CheckPayment resolves payment standing for (uid, event). Free events are
// cleared as long as the person is registered for them. Absent registrations
// and absent events come back unverified, not as errors.
func (d *Directory) CheckPayment(ctx context.Context, uid, event string) (PaymentStatus, error) {
	reg, err := d.GetRegistration(ctx, uid)
	if err != nil {
		return PaymentStatus{}, err
	}
	if reg == nil {
		return PaymentStatus{}, nil
	}

	registered := false
	for _, e := range reg.Events {
		if e == event {
			registered = true
			break
		}
	}
	if !registered {
		return PaymentStatus{}, nil
	}

	if !d.paid[event] {
		return PaymentStatus{IsPaid: false, Verified: true}, nil
	}
	return PaymentStatus{IsPaid: true, Verified: reg.HasVerifiedPayment(event)}, nil
}

// RegisterOnSpotPayment records a cash payment taken at the desk onto the
// registration document, creating a minimal document for walk-ins. The
// payment id is derived from the event so repeating the call is a no-op.
func (d *Directory) RegisterOnSpotPayment(ctx context.Context, uid, event string, amount float64) error {
	reg, err := d.GetRegistration(ctx, uid)
	if err != nil {
		return err
	}
	if reg == nil {
		reg = &models.Registration{UID: uid, Events: []string{}, Payments: []models.Payment{}}
	}

	paymentID := "onspot_" + models.EventKey(event)
	for _, p := range reg.Payments {
		if p.ID == paymentID {
			return nil // already recorded
		}
	}

	hasEvent := false
	for _, e := range reg.Events {
		if e == event {
			hasEvent = true
			break
		}
	}
	if !hasEvent {
		reg.Events = append(reg.Events, event)
	}
	reg.Payments = append(reg.Payments, models.Payment{
		ID:         paymentID,
		EventNames: []string{event},
		Verified:   true,
		Amount:     amount,
	})

	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("directory payment %s: %w", uid, err)
	}
	res, err := d.es.Index(IdxRegistrations, bytes.NewReader(body),
		d.es.Index.WithDocumentID(uid),
		d.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("directory payment %s: %w", uid, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("directory payment %s: status=%s", uid, res.Status())
	}
	return nil
}
