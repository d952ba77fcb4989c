package registration

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/sirdesai22/checkin-service/internal/models"
	"github.com/sirdesai22/checkin-service/internal/store"
	"github.com/sirdesai22/checkin-service/internal/verify"
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

func validInput() Input {
	return Input{
		Event:        "Hack",
		Name:         "Asha",
		Email:        "Asha@Example.com",
		Phone:        "9876543210",
		College:      "Other",
		CollegeOther: "Some College",
		Degree:       "B.E.",
		Department:   "CSE",
		Year:         "3",
	}
}

func TestRegisterCreatesUnsyncedOnSpotRecord(t *testing.T) {
	st := newTestStore(t)

	p, credential, err := Register(st, validInput(), map[string]bool{"Hack": true})
	if err != nil {
		t.Fatal(err)
	}

	if p.Source != models.SourceOnSpot || p.SyncStatus {
		t.Errorf("desk registration must be ONSPOT and unsynced: %+v", p)
	}
	if !p.PaymentVerified || p.EventType != models.EventTypePaid {
		t.Errorf("paid-event desk registration collects payment up front: %+v", p)
	}
	if p.Participated {
		t.Error("registration must not grant entry")
	}
	if p.Email != "asha@example.com" {
		t.Errorf("email not normalized: %q", p.Email)
	}
	if p.College != "Some College" {
		t.Errorf("Other college not merged: %q", p.College)
	}

	if len(st.UnsyncedOnSpot()) != 1 {
		t.Error("record should be eligible for the next push")
	}

	// The credential must round-trip through the scanner as a structured
	// payload carrying payment proof for the event.
	decoded := verify.DecodePayload(credential)
	if decoded.Kind != verify.KindStructured {
		t.Fatal("credential did not decode as a structured payload")
	}
	if decoded.UID != p.UID || !decoded.RegisteredFor("Hack") {
		t.Errorf("credential identity wrong: %+v", decoded)
	}
	if !decoded.HasPaymentProof("Hack") {
		t.Error("paid-event credential must carry payment proof")
	}
}

func TestRegisterFreeEvent(t *testing.T) {
	st := newTestStore(t)

	p, credential, err := Register(st, validInput(), map[string]bool{})
	if err != nil {
		t.Fatal(err)
	}
	if p.PaymentVerified || p.EventType != models.EventTypeFree {
		t.Errorf("free event should not mark payment: %+v", p)
	}
	if verify.DecodePayload(credential).HasPaymentProof("Hack") {
		t.Error("free-event credential must not carry payment proof")
	}
}

func TestRegisterValidation(t *testing.T) {
	st := newTestStore(t)

	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing name", func(in *Input) { in.Name = " " }},
		{"bad email", func(in *Input) { in.Email = "nope" }},
		{"short phone", func(in *Input) { in.Phone = "12345" }},
		{"non-numeric phone", func(in *Input) { in.Phone = "98765xyz10" }},
		{"other college empty", func(in *Input) { in.College = "Other"; in.CollegeOther = "" }},
		{"other degree empty", func(in *Input) { in.Degree = "Other"; in.DegreeOther = "" }},
		{"other department empty", func(in *Input) { in.Department = "Other"; in.DepartmentOther = "" }},
		{"missing event", func(in *Input) { in.Event = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if _, _, err := Register(st, in, nil); !errors.Is(err, ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}
