// Package transfer moves participant sets between devices as chunked,
// QR-sized JSON payloads when there is no network at all.
package transfer

import (
	"encoding/json"
	"time"

	"github.com/sirdesai22/checkin-service/internal/models"
)

// MaxPayloadSize is the ceiling for one serialized chunk. QR codes above
// this stop scanning reliably on mid-range cameras.
const MaxPayloadSize = 1800

type ExportResult struct {
	Payloads    []string `json:"payloads"`
	TotalParts  int      `json:"total_parts"`
	TotalEmails int      `json:"total_emails"`
}

// ParticipantSource is the slice of the local store the exporter reads.
type ParticipantSource interface {
	All() []models.Participant
}

type Exporter struct {
	store ParticipantSource
	now   func() time.Time
}

func NewExporter(store ParticipantSource) *Exporter {
	return &Exporter{store: store, now: time.Now}
}

// Export serializes the unique non-empty emails of all local participants
// into chunks that each stay within MaxPayloadSize. The timestamp is minted
// once, so all chunks of one export form a single session.
func (e *Exporter) Export(event string) (*ExportResult, error) {
	emails := uniqueEmails(e.store.All())
	if len(emails) == 0 {
		return &ExportResult{Payloads: []string{}}, nil
	}

	timestamp := e.now().UTC().Format(time.RFC3339)

	// Pack greedily by actual serialized size. Part/total are measured with
	// 3-digit placeholders so the real numbers can never push a chunk over
	// the ceiling.
	var batches [][]string
	var current []string
	for _, email := range emails {
		candidate := append(current, email)
		if len(current) > 0 && chunkLen(candidate, event, timestamp) > MaxPayloadSize {
			batches = append(batches, current)
			current = []string{email}
			continue
		}
		current = candidate
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	payloads := make([]string, 0, len(batches))
	for i, batch := range batches {
		chunk := models.TransferChunk{
			Part:      i + 1,
			Total:     len(batches),
			Event:     event,
			Timestamp: timestamp,
			Emails:    batch,
		}
		data, err := json.Marshal(chunk)
		if err != nil {
			return nil, err
		}
		payloads = append(payloads, string(data))
	}

	return &ExportResult{
		Payloads:    payloads,
		TotalParts:  len(batches),
		TotalEmails: len(emails),
	}, nil
}

// uniqueEmails keeps first-occurrence order and drops blanks.
func uniqueEmails(participants []models.Participant) []string {
	seen := make(map[string]bool, len(participants))
	var out []string
	for _, p := range participants {
		if p.Email == "" || seen[p.Email] {
			continue
		}
		seen[p.Email] = true
		out = append(out, p.Email)
	}
	return out
}

func chunkLen(emails []string, event, timestamp string) int {
	data, _ := json.Marshal(models.TransferChunk{
		Part:      999,
		Total:     999,
		Event:     event,
		Timestamp: timestamp,
		Emails:    emails,
	})
	return len(data)
}
