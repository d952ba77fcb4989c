package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirdesai22/checkin-service/internal/models"
	"github.com/sirdesai22/checkin-service/internal/store"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(&models.Participant{}, &models.SyncState{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.New(gdb)
}

func seedEmails(t *testing.T, s *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		s.InsertIfAbsent(models.Participant{
			UID:     fmt.Sprintf("U%04d", i),
			EventID: "Hack",
			Name:    fmt.Sprintf("P%04d", i),
			Email:   fmt.Sprintf("participant%04d@example.com", i), // 27 chars
		})
	}
}

func TestExportChunksStayWithinCeiling(t *testing.T) {
	s := newTestStore(t)
	// 150 emails x ~30 serialized chars = 4.5k of address data: must split
	// into 3 parts at the 1800-char ceiling.
	seedEmails(t, s, 150)

	ex := NewExporter(s)
	res, err := ex.Export("Hack")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalEmails != 150 {
		t.Fatalf("total emails = %d, want 150", res.TotalEmails)
	}
	if res.TotalParts != 3 {
		t.Fatalf("total parts = %d, want 3", res.TotalParts)
	}

	var firstTS string
	for i, payload := range res.Payloads {
		if len(payload) > MaxPayloadSize {
			t.Errorf("chunk %d is %d chars, over the %d ceiling", i+1, len(payload), MaxPayloadSize)
		}
		var chunk models.TransferChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			t.Fatalf("chunk %d not valid JSON: %v", i+1, err)
		}
		if chunk.Part != i+1 || chunk.Total != 3 {
			t.Errorf("chunk %d numbering wrong: part=%d total=%d", i+1, chunk.Part, chunk.Total)
		}
		if i == 0 {
			firstTS = chunk.Timestamp
		} else if chunk.Timestamp != firstTS {
			t.Error("all chunks of one export must share the timestamp minted at export time")
		}
	}
}

func TestExportDeduplicatesEmails(t *testing.T) {
	s := newTestStore(t)
	s.InsertIfAbsent(models.Participant{UID: "U1", EventID: "Hack", Email: "same@example.com"})
	s.InsertIfAbsent(models.Participant{UID: "U2", EventID: "Quiz", Email: "same@example.com"})
	s.InsertIfAbsent(models.Participant{UID: "U3", EventID: "Hack", Email: ""})

	res, err := NewExporter(s).Export("Hack")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalEmails != 1 {
		t.Errorf("total emails = %d, want 1 (deduplicated, blanks dropped)", res.TotalEmails)
	}
}

func TestExportEmptyStore(t *testing.T) {
	res, err := NewExporter(newTestStore(t)).Export("Hack")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalParts != 0 || len(res.Payloads) != 0 {
		t.Errorf("empty store should export nothing, got %+v", res)
	}
}

func TestRoundTripOutOfOrderAndIdempotent(t *testing.T) {
	src := newTestStore(t)
	seedEmails(t, src, 150)
	res, err := NewExporter(src).Export("Hack")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Payloads) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(res.Payloads))
	}

	dst := newTestStore(t)
	im := NewImporter(dst, "Hack")

	// Scan order [2, 1, 3].
	for _, idx := range []int{1, 0} {
		st, err := im.Ingest(res.Payloads[idx])
		if err != nil {
			t.Fatal(err)
		}
		if st.Complete {
			t.Fatal("session finalized before all parts arrived")
		}
		if len(dst.All()) != 0 {
			t.Fatal("partial session must not touch the participant set")
		}
	}
	st, err := im.Ingest(res.Payloads[2])
	if err != nil {
		t.Fatal(err)
	}
	if !st.Complete || st.Imported != 150 {
		t.Fatalf("finalize status wrong: %+v", st)
	}

	imported := dst.All()
	if len(imported) != 150 {
		t.Fatalf("imported %d records, want 150", len(imported))
	}
	for _, p := range imported {
		if p.Source != models.SourceWeb || !p.SyncStatus {
			t.Fatalf("imported record should be WEB/synced: %+v", p)
		}
	}

	// Re-import the full set: same deterministic uids, zero new records.
	im2 := NewImporter(dst, "Hack")
	for _, payload := range res.Payloads {
		if _, err := im2.Ingest(payload); err != nil {
			t.Fatal(err)
		}
	}
	if got := len(dst.All()); got != 150 {
		t.Errorf("re-import added records: %d, want 150", got)
	}
}

func TestIngestRejectsEventMismatch(t *testing.T) {
	src := newTestStore(t)
	seedEmails(t, src, 150)
	res, _ := NewExporter(src).Export("Hack")

	im := NewImporter(newTestStore(t), "Quiz")
	for i, payload := range res.Payloads {
		if _, err := im.Ingest(payload); !errors.Is(err, ErrEventMismatch) {
			t.Errorf("chunk %d: err = %v, want ErrEventMismatch", i+1, err)
		}
	}
}

func TestIngestRejectsDuplicatePart(t *testing.T) {
	src := newTestStore(t)
	seedEmails(t, src, 150)
	res, _ := NewExporter(src).Export("Hack")

	im := NewImporter(newTestStore(t), "Hack")
	if _, err := im.Ingest(res.Payloads[0]); err != nil {
		t.Fatal(err)
	}
	if _, err := im.Ingest(res.Payloads[0]); !errors.Is(err, ErrDuplicatePart) {
		t.Errorf("err = %v, want ErrDuplicatePart", err)
	}
}

func TestIngestRejectsInvalidChunks(t *testing.T) {
	im := NewImporter(newTestStore(t), "Hack")

	cases := []struct {
		name    string
		payload string
	}{
		{"not json", "garbage"},
		{"missing part", `{"total":2,"event":"Hack","timestamp":"t","emails":["a@x.com"]}`},
		{"part beyond total", `{"part":3,"total":2,"event":"Hack","timestamp":"t","emails":["a@x.com"]}`},
		{"missing emails", `{"part":1,"total":2,"event":"Hack","timestamp":"t"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := im.Ingest(tc.payload); !errors.Is(err, ErrInvalidChunk) {
				t.Errorf("err = %v, want ErrInvalidChunk", err)
			}
		})
	}
}

func TestProgressAndClear(t *testing.T) {
	im := NewImporter(newTestStore(t), "Hack")
	ts := time.Now().UTC().Format(time.RFC3339)

	chunk := func(part int) string {
		data, _ := json.Marshal(models.TransferChunk{
			Part: part, Total: 3, Event: "Hack", Timestamp: ts,
			Emails: []string{fmt.Sprintf("p%d@example.com", part)},
		})
		return string(data)
	}

	if _, err := im.Ingest(chunk(2)); err != nil {
		t.Fatal(err)
	}
	st := im.Progress("Hack", ts)
	if st.TotalParts != 3 || len(st.PartsReceived) != 1 || st.PartsReceived[0] != 2 {
		t.Errorf("progress wrong: %+v", st)
	}

	im.Clear()
	if st := im.Progress("Hack", ts); len(st.PartsReceived) != 0 {
		t.Errorf("clear did not discard buffered chunks: %+v", st)
	}
}
