// Package syncer moves records between the remote directory and the local
// replica in both directions, opportunistically (app start, explicit
// trigger).
//
// Known gap: two devices scanning the same uid for the same event while
// offline can both admit before either pushes. There is no ordering
// authority until both sync; insert-if-absent keeps the duplicate harmless
// locally but the two admissions are not merged.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/sirdesai22/checkin-service/internal/metrics"
	"github.com/sirdesai22/checkin-service/internal/models"
	"github.com/sirdesai22/checkin-service/internal/remote"
	"github.com/sirdesai22/checkin-service/internal/store"
)

const initialPullFlag = "initial_pull_complete"

type Reconciler struct {
	Store *store.Store
	ES    *es.Client
	Paid  map[string]bool

	pushMu sync.Mutex
}

// InitialPull runs the bulk refresh exactly once per device, guarded by a
// local flag row.
func (r *Reconciler) InitialPull(ctx context.Context) error {
	if r.Store.Flag(initialPullFlag) == "true" {
		log.Println("initial pull already complete, skipping")
		return nil
	}
	n, err := r.Pull(ctx)
	if err != nil {
		return err
	}
	r.Store.SetFlag(initialPullFlag, "true")
	log.Printf("✅ initial pull complete, %d records", n)
	return nil
}

// Pull enumerates all remote registration documents and materializes one
// local record per (identity, event). Intended as an infrequent bulk
// refresh, not a live stream.
func (r *Reconciler) Pull(ctx context.Context) (int, error) {
	res, err := r.ES.Search(
		r.ES.Search.WithContext(ctx),
		r.ES.Search.WithIndex(remote.IdxRegistrations),
		r.ES.Search.WithBody(strings.NewReader(`{"query":{"match_all":{}},"size":10000}`)),
	)
	if err != nil {
		return 0, fmt.Errorf("pull: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("pull: status=%s", res.Status())
	}

	var envelope struct {
		Hits struct {
			Hits []struct {
				ID     string              `json:"_id"`
				Source models.Registration `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return 0, fmt.Errorf("pull: decode: %w", err)
	}

	total := 0
	for _, hit := range envelope.Hits.Hits {
		reg := hit.Source
		if reg.UID == "" {
			reg.UID = hit.ID
		}
		for _, p := range RecordsFromRegistration(reg, r.Paid) {
			r.Store.InsertIfAbsent(p)
			total++
		}
	}
	metrics.SyncPulled.Add(float64(total))
	log.Printf("pull: materialized %d records from %d registrations", total, len(envelope.Hits.Hits))
	return total, nil
}

// RecordsFromRegistration derives one local record per event the person
// registered for, under the composed uid {uid}_{eventNameNoSpaces} so one
// source identity can span multiple event rows. event_type comes from the
// paid-events set, not from payment presence: a paid event's registrant is
// paid whether or not they have paid yet.
func RecordsFromRegistration(reg models.Registration, paidEvents map[string]bool) []models.Participant {
	out := make([]models.Participant, 0, len(reg.Events))
	for _, event := range reg.Events {
		verified := reg.HasVerifiedPayment(event)
		eventType := models.EventTypeFree
		if paidEvents[event] {
			eventType = models.EventTypePaid
		}
		out = append(out, models.Participant{
			UID:             fmt.Sprintf("%s_%s", reg.UID, models.EventKey(event)),
			EventID:         event,
			Name:            reg.BestName(),
			Phone:           reg.Phone,
			Email:           reg.Email,
			College:         reg.College,
			Degree:          reg.Degree,
			Department:      reg.Department,
			Year:            reg.Year,
			Source:          models.SourceWeb,
			SyncStatus:      true,
			PaymentVerified: verified,
			EventType:       eventType,
		})
	}
	return out
}

// Push uploads unsynced on-spot registrations into the per-event mirror.
// All-or-nothing at the batch level: if any item fails, no record is marked
// synced and the whole batch stays eligible for the next push. A mutex keeps
// Push from racing itself, so a batch is never double-pushed.
func (r *Reconciler) Push(ctx context.Context) (int, error) {
	r.pushMu.Lock()
	defer r.pushMu.Unlock()

	batch := r.Store.UnsyncedOnSpot()
	if len(batch) == 0 {
		log.Println("push: nothing unsynced")
		return 0, nil
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client: r.ES, Index: remote.IdxEventParticipants, FlushBytes: 5 << 20, NumWorkers: 2,
	})
	if err != nil {
		return 0, fmt.Errorf("push: %w", err)
	}

	for _, p := range batch {
		doc, err := remote.BuildCheckinDoc(p)
		if err != nil {
			return 0, fmt.Errorf("push: build doc %s: %w", p.UID, err)
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: remote.CheckinDocID(p.EventID, p.UID),
			Body:       bytes.NewReader(doc),
		})
		if err != nil {
			return 0, fmt.Errorf("push: enqueue %s: %w", p.UID, err)
		}
	}

	if err := bi.Close(ctx); err != nil {
		metrics.SyncPushFailures.Inc()
		return 0, fmt.Errorf("push: %w", err)
	}
	stats := bi.Stats()
	if stats.NumFailed > 0 {
		metrics.SyncPushFailures.Inc()
		return 0, fmt.Errorf("push: %d of %d items failed, batch left for retry", stats.NumFailed, len(batch))
	}

	for _, p := range batch {
		r.Store.MarkSynced(p.UID)
	}
	metrics.SyncPushed.Add(float64(len(batch)))
	log.Printf("✅ push: %d on-spot records synced", len(batch))
	return len(batch), nil
}
