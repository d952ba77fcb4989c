package syncer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	es "github.com/elastic/go-elasticsearch/v8"
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

func TestRecordsFromRegistration(t *testing.T) {
	reg := models.Registration{
		UID:         "F1",
		DisplayName: "Asha",
		Email:       "asha@example.com",
		Phone:       "9876543210",
		Events:      []string{"Tech Quiz", "Hack", "Workshop"},
		Payments: []models.Payment{
			{EventNames: []string{"Tech Quiz"}, Verified: true, Amount: 120},
			{EventNames: []string{"Hack"}, Verified: false},
		},
	}
	paid := map[string]bool{"Tech Quiz": true, "Hack": true}

	records := RecordsFromRegistration(reg, paid)
	if len(records) != 3 {
		t.Fatalf("expected one record per event, got %d", len(records))
	}

	byEvent := map[string]models.Participant{}
	for _, r := range records {
		byEvent[r.EventID] = r
	}

	quiz := byEvent["Tech Quiz"]
	if quiz.UID != "F1_TechQuiz" {
		t.Errorf("composed uid = %q, want F1_TechQuiz", quiz.UID)
	}
	if !quiz.PaymentVerified || quiz.EventType != models.EventTypePaid {
		t.Errorf("verified payment covering Tech Quiz not picked up: %+v", quiz)
	}
	if quiz.Source != models.SourceWeb || !quiz.SyncStatus {
		t.Errorf("pulled record should be WEB/synced: %+v", quiz)
	}
	if quiz.Participated {
		t.Error("pull must never mark participation")
	}

	// A paid event's registrant stays event_type=paid even before paying.
	hack := byEvent["Hack"]
	if hack.UID != "F1_Hack" {
		t.Errorf("composed uid = %q, want F1_Hack", hack.UID)
	}
	if hack.PaymentVerified {
		t.Error("unverified payment must not count")
	}
	if hack.EventType != models.EventTypePaid {
		t.Errorf("event type follows the paid set, got %q", hack.EventType)
	}

	if ws := byEvent["Workshop"]; ws.EventType != models.EventTypeFree || ws.PaymentVerified {
		t.Errorf("free event materialized wrong: %+v", ws)
	}
}

func TestRecordsFromRegistrationNoEvents(t *testing.T) {
	if got := RecordsFromRegistration(models.Registration{UID: "F1"}, nil); len(got) != 0 {
		t.Errorf("registration without events should yield nothing, got %d", len(got))
	}
}

// bulkServer answers _bulk requests with one response item per submitted
// document. With failFirst set, the first item of every batch comes back as
// a mapping failure.
func bulkServer(t *testing.T, failFirst bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/_bulk") {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read bulk body: %v", err)
		}
		// Each item is an action line plus a source line.
		items := bytes.Count(body, []byte("\n")) / 2

		var b strings.Builder
		b.WriteString(`{"took":1,"errors":`)
		if failFirst {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		b.WriteString(`,"items":[`)
		for i := 0; i < items; i++ {
			if i > 0 {
				b.WriteString(",")
			}
			if failFirst && i == 0 {
				b.WriteString(`{"index":{"_id":"doc","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad document"}}}`)
			} else {
				b.WriteString(`{"index":{"_id":"doc","status":201}}`)
			}
		}
		b.WriteString(`]}`)
		io.WriteString(w, b.String())
	}))
}

func pushFixture(t *testing.T, srv *httptest.Server) *Reconciler {
	t.Helper()
	st := newTestStore(t)
	st.InsertIfAbsent(models.Participant{UID: "O1", EventID: "Hack", Name: "A", Source: models.SourceOnSpot, SyncStatus: false})
	st.InsertIfAbsent(models.Participant{UID: "O2", EventID: "Hack", Name: "B", Source: models.SourceOnSpot, SyncStatus: false})

	client, err := es.NewClient(es.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("build client: %v", err)
	}
	return &Reconciler{Store: st, ES: client}
}

func TestPushMarksBatchSynced(t *testing.T) {
	srv := bulkServer(t, false)
	defer srv.Close()
	rec := pushFixture(t, srv)

	n, err := rec.Push(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("pushed = %d, want 2", n)
	}
	if left := rec.Store.UnsyncedOnSpot(); len(left) != 0 {
		t.Errorf("clean batch should be fully synced, %d left", len(left))
	}
}

func TestPushPartialFailureLeavesBatchUnsynced(t *testing.T) {
	srv := bulkServer(t, true)
	defer srv.Close()
	rec := pushFixture(t, srv)

	if _, err := rec.Push(context.Background()); err == nil {
		t.Fatal("expected error when bulk items fail")
	}
	// All-or-nothing: even the items that landed stay eligible for retry.
	if left := rec.Store.UnsyncedOnSpot(); len(left) != 2 {
		t.Errorf("failed batch must stay fully unsynced, %d left", len(left))
	}
}
