package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirdesai22/checkin-service/internal/metrics"
	"github.com/sirdesai22/checkin-service/internal/models"
)

var (
	// ErrInvalidChunk: the payload is not a well-formed transfer chunk.
	ErrInvalidChunk = errors.New("invalid transfer chunk")
	// ErrEventMismatch: the chunk belongs to a different event than the one
	// this device is operating.
	ErrEventMismatch = errors.New("chunk is for a different event")
	// ErrDuplicatePart: this part number was already scanned for the same
	// session. Distinct from an invalid chunk so the operator knows they
	// re-scanned a code rather than scanned garbage.
	ErrDuplicatePart = errors.New("part already imported")
)

// importNamespace seeds the deterministic identities for imported emails, so
// re-importing the same dataset lands on the same (uid, event) pairs.
var importNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("checkin-transfer-import"))

// ParticipantSink is the slice of the local store the importer writes to.
type ParticipantSink interface {
	InsertIfAbsent(p models.Participant)
}

// Status reports session progress after each ingested chunk.
type Status struct {
	Complete      bool   `json:"complete"`
	Event         string `json:"event"`
	Timestamp     string `json:"timestamp"`
	PartsReceived []int  `json:"parts_received"`
	TotalParts    int    `json:"total_parts"`
	Imported      int    `json:"imported"`
}

// Importer buffers chunks per session until every part has arrived, then
// writes the merged email set into the local store. Sessions are keyed by
// (event, timestamp) taken from chunk content, not scan order.
type Importer struct {
	store ParticipantSink
	event string

	mu       sync.Mutex
	sessions map[string][]models.TransferChunk
}

func NewImporter(store ParticipantSink, event string) *Importer {
	return &Importer{
		store:    store,
		event:    event,
		sessions: make(map[string][]models.TransferChunk),
	}
}

// Ingest validates and buffers one scanned chunk. When the session's last
// part arrives, the session is finalized and removed from the buffer.
// Partial sessions never touch the participant set.
func (im *Importer) Ingest(payload string) (*Status, error) {
	var chunk models.TransferChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
	}
	if chunk.Part < 1 || chunk.Total < 1 || chunk.Part > chunk.Total ||
		chunk.Event == "" || chunk.Emails == nil {
		return nil, ErrInvalidChunk
	}
	if chunk.Event != im.event {
		return nil, fmt.Errorf("%w: chunk is for %q, current event is %q",
			ErrEventMismatch, chunk.Event, im.event)
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	key := sessionKey(chunk.Event, chunk.Timestamp)
	buffer := im.sessions[key]

	for _, got := range buffer {
		if got.Part == chunk.Part {
			return nil, fmt.Errorf("%w: part %d", ErrDuplicatePart, chunk.Part)
		}
	}
	if len(buffer) > 0 && buffer[0].Total != chunk.Total {
		return nil, fmt.Errorf("%w: part count disagrees within session", ErrInvalidChunk)
	}

	buffer = append(buffer, chunk)
	im.sessions[key] = buffer
	metrics.ChunksIngested.Inc()

	if len(buffer) < chunk.Total {
		return &Status{
			Event:         chunk.Event,
			Timestamp:     chunk.Timestamp,
			PartsReceived: partNumbers(buffer),
			TotalParts:    chunk.Total,
		}, nil
	}

	// Session complete: merge in part order and import.
	sort.Slice(buffer, func(i, j int) bool { return buffer[i].Part < buffer[j].Part })
	imported := 0
	for _, part := range buffer {
		for _, email := range part.Emails {
			if email == "" {
				continue
			}
			im.store.InsertIfAbsent(importedParticipant(email, im.event))
			imported++
		}
	}
	delete(im.sessions, key)
	metrics.ImportedParticipants.Add(float64(imported))

	return &Status{
		Complete:      true,
		Event:         chunk.Event,
		Timestamp:     chunk.Timestamp,
		PartsReceived: partNumbers(buffer),
		TotalParts:    chunk.Total,
		Imported:      imported,
	}, nil
}

// Progress reports which parts of a session have arrived so far.
func (im *Importer) Progress(event, timestamp string) Status {
	im.mu.Lock()
	defer im.mu.Unlock()

	buffer := im.sessions[sessionKey(event, timestamp)]
	st := Status{Event: event, Timestamp: timestamp, PartsReceived: partNumbers(buffer)}
	if len(buffer) > 0 {
		st.TotalParts = buffer[0].Total
	}
	return st
}

// Clear abandons all buffered sessions without importing anything.
func (im *Importer) Clear() {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.sessions = make(map[string][]models.TransferChunk)
}

func sessionKey(event, timestamp string) string {
	return event + "_" + timestamp
}

func partNumbers(buffer []models.TransferChunk) []int {
	parts := make([]int, 0, len(buffer))
	for _, c := range buffer {
		parts = append(parts, c.Part)
	}
	sort.Ints(parts)
	return parts
}

// importedParticipant synthesizes the local record for an imported email.
// The uid is a name-based UUID over (event, email), so re-imports are
// idempotent under insert-if-absent.
func importedParticipant(email, event string) models.Participant {
	uid := "IMPORT_" + uuid.NewSHA1(importNamespace, []byte(event+"|"+email)).String()
	name := email
	if at := strings.Index(email, "@"); at > 0 {
		name = email[:at]
	}
	return models.Participant{
		UID:        uid,
		EventID:    event,
		Name:       name,
		Email:      email,
		Source:     models.SourceWeb,
		SyncStatus: true,
	}
}
