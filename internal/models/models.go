package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// ---------------- PARTICIPANTS (local replica) ----------------

// Participant is one row per (identity, event) pair. The composite key gives
// INSERT ... ON CONFLICT DO NOTHING semantics, so re-imports never clobber
// mutated fields like participated/payment_verified.
type Participant struct {
	UID             string         `gorm:"primaryKey;column:uid" json:"uid"`
	EventID         string         `gorm:"primaryKey;column:event_id;index" json:"event_id"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	Email           string         `json:"email"`
	College         string         `json:"college"`
	CollegeOther    string         `json:"college_other,omitempty"`
	Degree          string         `json:"degree"`
	DegreeOther     string         `json:"degree_other,omitempty"`
	Department      string         `json:"department"`
	DepartmentOther string         `json:"department_other,omitempty"`
	Year            string         `json:"year"`
	TeamName        string         `json:"team_name,omitempty"`
	TeamMembers     datatypes.JSON `json:"team_members,omitempty"` // []string
	Source          string         `gorm:"default:WEB" json:"source"`
	// No default tag here: GORM omits zero-value fields that carry one from
	// the INSERT, and on-spot rows must persist sync_status=false.
	SyncStatus      bool       `json:"sync_status"`
	PaymentVerified bool       `json:"payment_verified"`
	Participated    bool       `json:"participated"`
	CheckedIn       bool       `json:"checked_in"`
	CheckinTime     *time.Time `json:"checkin_time,omitempty"`
	EventType       string     `gorm:"default:free" json:"event_type"`
	CreatedAt       time.Time  `json:"created_at"`
}

const (
	SourceWeb    = "WEB"
	SourceOnSpot = "ONSPOT"

	EventTypeFree = "free"
	EventTypePaid = "paid"
)

// ---------------- SYNC STATE ----------------

// SyncState holds key/value rows for reconciler bookkeeping, e.g. the
// one-time initial pull flag.
type SyncState struct {
	Key       string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

// ---------------- REMOTE DIRECTORY DOCUMENTS ----------------

// Registration is the wire shape of a registration document in the remote
// directory. JSON field names follow the web registration system.
type Registration struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	Name        string    `json:"name,omitempty"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	College     string    `json:"college"`
	Degree      string    `json:"degree"`
	Department  string    `json:"department"`
	Year        string    `json:"year"`
	Events      []string  `json:"events"`
	Payments    []Payment `json:"payments"`
}

type Payment struct {
	ID         string   `json:"id,omitempty"`
	EventNames []string `json:"eventNames"`
	Verified   bool     `json:"verified"`
	Amount     float64  `json:"amount,omitempty"`
}

// BestName prefers the display name the web flow writes.
func (r Registration) BestName() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	if r.Name != "" {
		return r.Name
	}
	return "Unknown"
}

// HasVerifiedPayment reports whether any verified payment entry covers the
// given event. A single match is sufficient.
func (r Registration) HasVerifiedPayment(event string) bool {
	for _, p := range r.Payments {
		if !p.Verified {
			continue
		}
		for _, name := range p.EventNames {
			if name == event {
				return true
			}
		}
	}
	return false
}

// ---------------- CHECK-IN MIRROR ----------------

// CheckinDoc is the per-event mirror document pushed for on-spot
// registrations, addressed by (event, uid).
type CheckinDoc struct {
	UID         string     `json:"uid"`
	Event       string     `json:"event"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone"`
	Email       string     `json:"email"`
	CheckedIn   bool       `json:"checkedIn"`
	CheckinTime *time.Time `json:"checkinTime,omitempty"`
	Source      string     `json:"source"`
}

// ---------------- TRANSFER CHUNKS ----------------

// TransferChunk is one part of a chunked email export. A transfer session is
// identified by (event, timestamp); all chunks of one export share the
// timestamp minted once at export time.
type TransferChunk struct {
	Part      int      `json:"part"`
	Total     int      `json:"total"`
	Event     string   `json:"event"`
	Timestamp string   `json:"timestamp"`
	Emails    []string `json:"emails"`
}

// EventKey strips spaces from an event name, matching the legacy composed-uid
// scheme {uid}_{eventNameNoSpaces} used by the web sync.
func EventKey(event string) string {
	return strings.ReplaceAll(event, " ", "")
}
