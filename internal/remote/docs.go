package remote

import (
	"encoding/json"

	"github.com/sirdesai22/checkin-service/internal/models"
)

// CheckinDocID addresses the per-event mirror: one document per
// (event, uid) pair.
func CheckinDocID(event, uid string) string {
	return event + "::" + uid
}

func BuildCheckinDoc(p models.Participant) ([]byte, error) {
	return json.Marshal(models.CheckinDoc{
		UID:         p.UID,
		Event:       p.EventID,
		Name:        p.Name,
		Phone:       p.Phone,
		Email:       p.Email,
		CheckedIn:   p.CheckedIn,
		CheckinTime: p.CheckinTime,
		Source:      p.Source,
	})
}
