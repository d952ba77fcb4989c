// Package registration handles desk ("on-spot") registrations: participants
// who show up without having registered on the web.
package registration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirdesai22/checkin-service/internal/models"
)

// Input is the desk registration form. College/Degree/Department come from
// closed option lists; picking "Other" requires the matching free-text field.
type Input struct {
	Event           string   `json:"event"`
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	College         string   `json:"college"`
	CollegeOther    string   `json:"college_other"`
	Degree          string   `json:"degree"`
	DegreeOther     string   `json:"degree_other"`
	Department      string   `json:"department"`
	DepartmentOther string   `json:"department_other"`
	Year            string   `json:"year"`
	TeamName        string   `json:"team_name"`
	TeamMembers     []string `json:"team_members"`
}

// Store is the slice of the local replica registration writes to.
type Store interface {
	InsertIfAbsent(p models.Participant)
	FindByUIDAndEvent(uid, event string) *models.Participant
}

var ErrValidation = errors.New("invalid registration")

func (in Input) validate() error {
	if in.Event == "" {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	phone := strings.TrimSpace(in.Phone)
	if len(phone) != 10 {
		return fmt.Errorf("%w: phone must be 10 digits", ErrValidation)
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: phone must be 10 digits", ErrValidation)
		}
	}
	if in.College == "Other" && strings.TrimSpace(in.CollegeOther) == "" {
		return fmt.Errorf("%w: college name is required when selecting Other", ErrValidation)
	}
	if in.Degree == "Other" && strings.TrimSpace(in.DegreeOther) == "" {
		return fmt.Errorf("%w: degree is required when selecting Other", ErrValidation)
	}
	if in.Department == "Other" && strings.TrimSpace(in.DepartmentOther) == "" {
		return fmt.Errorf("%w: department is required when selecting Other", ErrValidation)
	}
	return nil
}

// merged resolves an "Other" selection to its free-text value.
func merged(choice, other string) string {
	if choice == "Other" {
		return strings.TrimSpace(other)
	}
	return choice
}

// Register creates the local record (source ONSPOT, unsynced) and returns it
// together with the JSON identity payload to encode into the participant's
// credential. For paid events the desk collects payment before registering,
// so payment_verified is set immediately.
func Register(st Store, in Input, paidEvents map[string]bool) (*models.Participant, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", err
	}

	isPaid := paidEvents[in.Event]
	eventType := models.EventTypeFree
	if isPaid {
		eventType = models.EventTypePaid
	}

	uid := "ONSPOT-" + uuid.NewString()
	members, _ := json.Marshal(in.TeamMembers)

	p := models.Participant{
		UID:             uid,
		EventID:         in.Event,
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:           strings.TrimSpace(in.Phone),
		College:         merged(in.College, in.CollegeOther),
		CollegeOther:    strings.TrimSpace(in.CollegeOther),
		Degree:          merged(in.Degree, in.DegreeOther),
		DegreeOther:     strings.TrimSpace(in.DegreeOther),
		Department:      merged(in.Department, in.DepartmentOther),
		DepartmentOther: strings.TrimSpace(in.DepartmentOther),
		Year:            in.Year,
		TeamName:        in.TeamName,
		TeamMembers:     members,
		Source:          models.SourceOnSpot,
		SyncStatus:      false,
		PaymentVerified: isPaid,
		EventType:       eventType,
	}
	st.InsertIfAbsent(p)

	stored := st.FindByUIDAndEvent(uid, in.Event)
	if stored == nil {
		stored = &p
	}

	credential, err := CredentialPayload(*stored, isPaid)
	if err != nil {
		return stored, "", err
	}
	return stored, credential, nil
}

// CredentialPayload builds the structured identity payload the scanner
// consumes, in the same shape web-issued credentials use.
func CredentialPayload(p models.Participant, isPaid bool) (string, error) {
	payments := []models.Payment{}
	if isPaid {
		payments = append(payments, models.Payment{
			ID:         "onspot_" + models.EventKey(p.EventID),
			EventNames: []string{p.EventID},
			Verified:   true,
		})
	}
	data, err := json.Marshal(map[string]any{
		"uid":      p.UID,
		"name":     p.Name,
		"email":    p.Email,
		"phone":    p.Phone,
		"college":  p.College,
		"dept":     p.Department,
		"year":     p.Year,
		"events":   []string{p.EventID},
		"payments": payments,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
