// Package verify decides, for one scanned credential at a time, whether a
// person may be admitted to the current event, and applies the local state
// mutations that go with that decision.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sirdesai22/checkin-service/internal/metrics"
	"github.com/sirdesai22/checkin-service/internal/models"
	"github.com/sirdesai22/checkin-service/internal/remote"
)

// Store is the slice of the local participant replica the engine needs.
// Storage trouble degrades to absent results inside the store, so lookups
// return plain pointers.
type Store interface {
	InsertIfAbsent(p models.Participant)
	FindByUID(uid string) *models.Participant
	FindByUIDAndEvent(uid, event string) *models.Participant
	MarkParticipated(uid, event string)
	SetPaymentVerified(uid string, verified bool)
}

// DirectoryClient is the fallible remote registration directory. An error
// means "unknown", never "not verified".
type DirectoryClient interface {
	GetRegistration(ctx context.Context, uid string) (*models.Registration, error)
	CheckPayment(ctx context.Context, uid, event string) (remote.PaymentStatus, error)
	RegisterOnSpotPayment(ctx context.Context, uid, event string, amount float64) error
}

// Outcome is the terminal state of one scan session.
type Outcome string

const (
	// OutcomeAwaitConfirm: all checks passed; the operator must still
	// explicitly confirm admission. There is no fully automatic entry.
	OutcomeAwaitConfirm Outcome = "AWAIT_CONFIRM"
	// OutcomeAlreadyParticipated: admission was already confirmed. For free
	// events the operator may re-enroll; for paid events this is terminal.
	OutcomeAlreadyParticipated Outcome = "ALREADY_PARTICIPATED"
	// OutcomePendingRegistration: no local record and the credential does
	// not cover this event; redirect to the registration desk, prefilled.
	OutcomePendingRegistration Outcome = "PENDING_REGISTRATION"
	// OutcomePendingPayment: payment has to be collected before entry.
	OutcomePendingPayment Outcome = "PENDING_PAYMENT"
	// OutcomePaymentUnknown: the remote payment check failed on
	// connectivity; the operator may override after manual verification.
	OutcomePaymentUnknown Outcome = "PAYMENT_UNKNOWN"
	// OutcomeRejected: terminal, with a reason the operator can act on.
	OutcomeRejected Outcome = "REJECTED"
)

// Prefill carries profile fields into the registration flow for people whose
// credential does not cover the current event.
type Prefill struct {
	UID     string `json:"uid"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	College string `json:"college"`
	Dept    string `json:"dept"`
	Year    string `json:"year"`
}

// Result is the admission decision for one scan.
type Result struct {
	Outcome     Outcome             `json:"outcome"`
	Reason      string              `json:"reason,omitempty"`
	UID         string              `json:"uid"`
	Name        string              `json:"name,omitempty"`
	Participant *models.Participant `json:"participant,omitempty"`
	Prefill     *Prefill            `json:"prefill,omitempty"`
	CanReEnroll bool                `json:"can_re_enroll,omitempty"`
	CanOverride bool                `json:"can_override,omitempty"`
}

var (
	// ErrScanInFlight: a scan is already being processed. New scans are
	// dropped, not queued; the operator simply scans again.
	ErrScanInFlight = errors.New("scan already in progress")
	// ErrUnknownParticipant: the operator verb referenced a (uid, event)
	// pair with no local record.
	ErrUnknownParticipant = errors.New("no local record for participant")
	// ErrAlreadyParticipated: re-entry refused for a paid event.
	ErrAlreadyParticipated = errors.New("already participated")
)

type Engine struct {
	store Store
	dir   DirectoryClient
	event string
	paid  bool

	busy sync.Mutex
}

func New(store Store, dir DirectoryClient, event string, paidEvents []string) *Engine {
	paid := false
	for _, e := range paidEvents {
		if e == event {
			paid = true
			break
		}
	}
	return &Engine{store: store, dir: dir, event: event, paid: paid}
}

func (e *Engine) Event() string { return e.event }

func (e *Engine) PaidEvent() bool { return e.paid }

// Scan processes one decoded QR payload against the current event. Only one
// scan runs at a time per device; concurrent calls get ErrScanInFlight.
func (e *Engine) Scan(ctx context.Context, raw string) (*Result, error) {
	if !e.busy.TryLock() {
		return nil, ErrScanInFlight
	}
	defer e.busy.Unlock()

	metrics.ScansTotal.Inc()

	p := DecodePayload(raw)
	var res *Result
	if p.Kind == KindStructured {
		res = e.scanStructured(ctx, p)
	} else {
		res = e.scanBare(ctx, p)
	}

	switch res.Outcome {
	case OutcomeRejected:
		metrics.RejectedTotal.Inc()
	case OutcomePendingPayment:
		metrics.PendingPaymentTotal.Inc()
	}
	return res, nil
}

// scanStructured handles self-describing identity payloads. A local record
// for (uid, event) always wins over whatever the payload declares; payload
// content only bootstraps a record that does not exist yet.
func (e *Engine) scanStructured(ctx context.Context, p Payload) *Result {
	rec := e.store.FindByUIDAndEvent(p.UID, e.event)
	fresh := false

	if rec == nil {
		if !p.RegisteredFor(e.event) {
			return &Result{
				Outcome: OutcomePendingRegistration,
				Reason:  fmt.Sprintf("%s is not registered for %s", p.Name, e.event),
				UID:     p.UID,
				Name:    p.Name,
				Prefill: &Prefill{
					UID: p.UID, Name: p.Name, Email: p.Email, Phone: p.Phone,
					College: p.College, Dept: p.Dept, Year: p.Year,
				},
			}
		}

		if e.paid && !p.HasPaymentProof(e.event) {
			return &Result{
				Outcome: OutcomePendingPayment,
				Reason:  fmt.Sprintf("%s is a paid event and the credential carries no payment proof", e.event),
				UID:     p.UID,
				Name:    p.Name,
			}
		}

		np := participantFromPayload(p, e.event, e.paid)
		e.store.InsertIfAbsent(np)
		rec = e.store.FindByUIDAndEvent(p.UID, e.event)
		if rec == nil {
			// Store degraded; fall back to the in-memory copy so the
			// operator still gets a decision.
			rec = &np
		}
		fresh = true
		log.Printf("auto-registered %s for %s from credential", p.UID, e.event)
	}

	return e.decide(ctx, p.UID, rec, fresh)
}

// scanBare handles plain identifiers: local lookup, then a best-effort
// remote lookup, then the paid-event cash path instead of a flat rejection.
func (e *Engine) scanBare(ctx context.Context, p Payload) *Result {
	rec := e.store.FindByUIDAndEvent(p.UID, e.event)

	if rec == nil {
		// Diagnostic only: a record under another event does not satisfy
		// event matching but is worth a log line at the gate.
		if other := e.store.FindByUID(p.UID); other != nil {
			log.Printf("uid %s known locally only for event %s", p.UID, other.EventID)
		}
	}

	if rec == nil {
		reg, err := e.dir.GetRegistration(ctx, p.UID)
		if err != nil {
			log.Printf("directory lookup failed (offline?): %v", err)
		}
		if reg != nil && registeredFor(reg.Events, e.event) {
			np := participantFromRegistration(*reg, e.event, e.paid)
			e.store.InsertIfAbsent(np)
			rec = e.store.FindByUIDAndEvent(p.UID, e.event)
			if rec == nil {
				rec = &np
			}
		}
	}

	if rec == nil {
		if e.paid {
			// Paid events always offer a monetization path instead of
			// turning people away.
			return &Result{
				Outcome: OutcomePendingPayment,
				Reason:  "no registration found; collect payment to register on the spot",
				UID:     p.UID,
			}
		}
		return &Result{
			Outcome: OutcomeRejected,
			Reason:  "not registered for this event",
			UID:     p.UID,
		}
	}

	return e.decide(ctx, p.UID, rec, false)
}

// decide runs the participated/payment policy shared by both payload shapes.
// fresh marks a record auto-registered moments ago from payload-level proof;
// it skips the second remote payment check.
func (e *Engine) decide(ctx context.Context, scannedUID string, rec *models.Participant, fresh bool) *Result {
	if rec.Participated {
		if e.paid {
			return &Result{
				Outcome:     OutcomeRejected,
				Reason:      "already participated; re-entry is not allowed for paid events",
				UID:         scannedUID,
				Name:        rec.Name,
				Participant: rec,
			}
		}
		return &Result{
			Outcome:     OutcomeAlreadyParticipated,
			Reason:      "already participated",
			UID:         scannedUID,
			Name:        rec.Name,
			Participant: rec,
			CanReEnroll: true,
		}
	}

	if e.paid && !fresh && !rec.PaymentVerified {
		status, err := e.dir.CheckPayment(ctx, scannedUID, e.event)
		if err != nil {
			log.Printf("payment check failed (offline?): %v", err)
			return &Result{
				Outcome:     OutcomePaymentUnknown,
				Reason:      "cannot reach the payment directory; verify manually before overriding",
				UID:         scannedUID,
				Name:        rec.Name,
				Participant: rec,
				CanOverride: true,
			}
		}
		if !status.Verified {
			return &Result{
				Outcome:     OutcomePendingPayment,
				Reason:      "payment not verified for this event",
				UID:         scannedUID,
				Name:        rec.Name,
				Participant: rec,
			}
		}
	}

	return &Result{
		Outcome:     OutcomeAwaitConfirm,
		UID:         scannedUID,
		Name:        rec.Name,
		Participant: rec,
	}
}

// ConfirmEntry is the operator's explicit admission grant. For free events a
// second confirm on an already-participated record is an idempotent
// re-enrollment; for paid events it is refused.
func (e *Engine) ConfirmEntry(uid string) (*models.Participant, error) {
	rec := e.store.FindByUIDAndEvent(uid, e.event)
	if rec == nil {
		return nil, ErrUnknownParticipant
	}
	if rec.Participated && e.paid {
		return nil, ErrAlreadyParticipated
	}
	e.store.MarkParticipated(rec.UID, e.event)
	metrics.AdmittedTotal.Inc()
	log.Printf("✅ %s admitted to %s", rec.UID, e.event)
	return e.store.FindByUIDAndEvent(uid, e.event), nil
}

// ConfirmCashPayment records an on-spot cash payment against the remote
// directory and, only on success, admits locally. Payment confirmation
// doubles as the entry grant. On remote failure nothing is written locally,
// so an unpaid admission can never be recorded.
func (e *Engine) ConfirmCashPayment(ctx context.Context, raw string, amount float64) (*models.Participant, error) {
	p := DecodePayload(raw)

	if err := e.dir.RegisterOnSpotPayment(ctx, p.UID, e.event, amount); err != nil {
		return nil, fmt.Errorf("payment not recorded remotely, retry when back online: %w", err)
	}

	rec := e.store.FindByUIDAndEvent(p.UID, e.event)
	if rec == nil {
		now := time.Now()
		np := participantFromPayload(p, e.event, e.paid)
		np.PaymentVerified = true
		np.Participated = true
		np.CheckedIn = true
		np.CheckinTime = &now
		e.store.InsertIfAbsent(np)
	} else {
		e.store.SetPaymentVerified(rec.UID, true)
		e.store.MarkParticipated(rec.UID, e.event)
	}
	metrics.AdmittedTotal.Inc()
	log.Printf("✅ cash payment recorded, %s admitted to %s", p.UID, e.event)
	return e.store.FindByUIDAndEvent(p.UID, e.event), nil
}

// AllowAnyway is the offline override: the operator verified payment by hand
// because the directory was unreachable. Logged loudly.
func (e *Engine) AllowAnyway(uid string) (*models.Participant, error) {
	rec := e.store.FindByUIDAndEvent(uid, e.event)
	if rec == nil {
		return nil, ErrUnknownParticipant
	}
	e.store.MarkParticipated(rec.UID, e.event)
	metrics.OverridesTotal.Inc()
	metrics.AdmittedTotal.Inc()
	log.Printf("⚠️ override: %s admitted to %s without payment verification", rec.UID, e.event)
	return e.store.FindByUIDAndEvent(uid, e.event), nil
}

func participantFromPayload(p Payload, event string, paid bool) models.Participant {
	name := p.Name
	if name == "" {
		name = p.UID
	}
	eventType := models.EventTypeFree
	if paid {
		eventType = models.EventTypePaid
	}
	return models.Participant{
		UID:             p.UID,
		EventID:         event,
		Name:            name,
		Email:           p.Email,
		Phone:           p.Phone,
		College:         p.College,
		Department:      p.Dept,
		Year:            p.Year,
		Source:          models.SourceWeb,
		SyncStatus:      true,
		PaymentVerified: p.HasPaymentProof(event),
		EventType:       eventType,
	}
}

func participantFromRegistration(r models.Registration, event string, paid bool) models.Participant {
	eventType := models.EventTypeFree
	if paid {
		eventType = models.EventTypePaid
	}
	return models.Participant{
		UID:             r.UID,
		EventID:         event,
		Name:            r.BestName(),
		Email:           r.Email,
		Phone:           r.Phone,
		College:         r.College,
		Degree:          r.Degree,
		Department:      r.Department,
		Year:            r.Year,
		Source:          models.SourceWeb,
		SyncStatus:      true,
		PaymentVerified: r.HasVerifiedPayment(event),
		EventType:       eventType,
	}
}

func registeredFor(events []string, event string) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
