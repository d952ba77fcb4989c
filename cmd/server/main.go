package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sirdesai22/checkin-service/internal/config"
	"github.com/sirdesai22/checkin-service/internal/db"
	"github.com/sirdesai22/checkin-service/internal/metrics"
	"github.com/sirdesai22/checkin-service/internal/registration"
	"github.com/sirdesai22/checkin-service/internal/remote"
	"github.com/sirdesai22/checkin-service/internal/store"
	"github.com/sirdesai22/checkin-service/internal/syncer"
	"github.com/sirdesai22/checkin-service/internal/transfer"
	"github.com/sirdesai22/checkin-service/internal/verify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("❌ config: %v", err)
	}

	gdb := db.Connect(cfg.SQLitePath)
	db.Migrate(gdb)
	st := store.New(gdb)

	metrics.Register()

	es := remote.Connect(cfg.ElasticURL)
	dir := remote.NewDirectory(es, cfg.PaidEvents)
	engine := verify.New(st, dir, cfg.CurrentEvent, cfg.PaidEvents)
	exporter := transfer.NewExporter(st)
	importer := transfer.NewImporter(st, cfg.CurrentEvent)
	rec := &syncer.Reconciler{Store: st, ES: es, Paid: cfg.PaidSet()}

	ctx := context.Background()

	// Best effort: the gate device may boot with no connectivity at all.
	if err := remote.EnsureIndexes(ctx, es); err != nil {
		log.Printf("⚠️ ensure indexes failed (offline?): %v", err)
	}
	if err := rec.InitialPull(ctx); err != nil {
		log.Printf("⚠️ initial pull failed (offline?): %v", err)
	}

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload string `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
			http.Error(w, "payload required", http.StatusBadRequest)
			return
		}
		res, err := engine.Scan(r.Context(), req.Payload)
		if err != nil {
			if errors.Is(err, verify.ErrScanInFlight) {
				http.Error(w, err.Error(), http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/api/scan/confirm", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UID string `json:"uid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
			http.Error(w, "uid required", http.StatusBadRequest)
			return
		}
		p, err := engine.ConfirmEntry(req.UID)
		if err != nil {
			status := http.StatusConflict
			if errors.Is(err, verify.ErrUnknownParticipant) {
				status = http.StatusNotFound
			}
			http.Error(w, err.Error(), status)
			return
		}
		json.NewEncoder(w).Encode(p)
	})

	mux.HandleFunc("/api/scan/cash", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload string  `json:"payload"`
			Amount  float64 `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
			http.Error(w, "payload required", http.StatusBadRequest)
			return
		}
		p, err := engine.ConfirmCashPayment(r.Context(), req.Payload, req.Amount)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(p)
	})

	mux.HandleFunc("/api/scan/override", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UID string `json:"uid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
			http.Error(w, "uid required", http.StatusBadRequest)
			return
		}
		p, err := engine.AllowAnyway(req.UID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(p)
	})

	mux.HandleFunc("/api/register", func(w http.ResponseWriter, r *http.Request) {
		var in registration.Input
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		if in.Event == "" {
			in.Event = cfg.CurrentEvent
		}
		p, credential, err := registration.Register(st, in, cfg.PaidSet())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"participant": p,
			"credential":  credential,
		})
	})

	mux.HandleFunc("/api/participants", func(w http.ResponseWriter, r *http.Request) {
		if event := r.URL.Query().Get("event"); event != "" {
			json.NewEncoder(w).Encode(st.ForEvent(event))
			return
		}
		json.NewEncoder(w).Encode(st.All())
	})

	mux.HandleFunc("/api/export", func(w http.ResponseWriter, r *http.Request) {
		res, err := exporter.Export(cfg.CurrentEvent)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(res)
	})

	mux.HandleFunc("/api/import", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Payload string `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Payload == "" {
			http.Error(w, "payload required", http.StatusBadRequest)
			return
		}
		status, err := importer.Ingest(req.Payload)
		if err != nil {
			code := http.StatusBadRequest
			if errors.Is(err, transfer.ErrDuplicatePart) {
				code = http.StatusConflict
			}
			http.Error(w, err.Error(), code)
			return
		}
		json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/api/import/progress", func(w http.ResponseWriter, r *http.Request) {
		ts := r.URL.Query().Get("timestamp")
		json.NewEncoder(w).Encode(importer.Progress(cfg.CurrentEvent, ts))
	})

	mux.HandleFunc("/api/import/clear", func(w http.ResponseWriter, r *http.Request) {
		importer.Clear()
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	})

	mux.HandleFunc("/api/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		n, err := rec.Pull(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"pulled": n})
	})

	mux.HandleFunc("/api/sync/push", func(w http.ResponseWriter, r *http.Request) {
		n, err := rec.Push(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"pushed": n})
	})

	mux.HandleFunc("/api/admin/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		st.ClearAll()
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	})

	log.Printf("🧭 Check-in API for %q running on %s (paid=%v)", cfg.CurrentEvent, cfg.HTTPAddr, engine.PaidEvent())
	if err := http.ListenAndServe(cfg.HTTPAddr, corsMiddleware.Handler(mux)); err != nil {
		log.Fatalf("listener failed: %v", err)
	}
}
