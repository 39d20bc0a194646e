package id_test

import (
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/keerthanap8898/TextToVideoAPI/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
		{"DLQID", id.NewDLQID, "dlq_"},
		{"EventID", id.NewEventID, "evt_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn()
			if got.IsNil() {
				t.Fatal("constructor returned the nil ID")
			}
			if !strings.HasPrefix(got.String(), tt.prefix) {
				t.Errorf("String() = %q, want prefix %q", got.String(), tt.prefix)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	orig := id.NewJobID()
	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != orig {
		t.Errorf("round trip changed the ID: %s vs %s", parsed, orig)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-typeid", "job_!!!"} {
		if _, err := id.Parse(s); err == nil {
			t.Errorf("Parse(%q) accepted invalid input", s)
		}
	}
}

func TestParseWithPrefix(t *testing.T) {
	jobID := id.NewJobID()

	if _, err := id.ParseJobID(jobID.String()); err != nil {
		t.Errorf("ParseJobID rejected a job ID: %v", err)
	}
	if _, err := id.ParseWorkerID(jobID.String()); err == nil {
		t.Error("ParseWorkerID accepted a job ID")
	}
}

func TestNilID(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Error("Nil.IsNil() = false")
	}
	if id.Nil.String() != "" {
		t.Errorf("Nil.String() = %q, want empty", id.Nil.String())
	}
	if id.Nil.Prefix() != "" {
		t.Errorf("Nil.Prefix() = %q, want empty", id.Nil.Prefix())
	}
}

func TestKSortable(t *testing.T) {
	// IDs generated in sequence must sort in generation order.
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = id.NewJobID().String()
	}
	if !sort.StringsAreSorted(ids) {
		t.Error("sequentially generated IDs are not string-sorted")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	orig := id.NewJobID()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var parsed id.ID
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if parsed != orig {
		t.Errorf("JSON round trip changed the ID: %s vs %s", parsed, orig)
	}

	var nilID id.ID
	data, err = json.Marshal(nilID)
	if err != nil {
		t.Fatalf("Marshal nil: %v", err)
	}
	if string(data) != `""` {
		t.Errorf("nil ID marshals to %s, want empty string", data)
	}
}

func TestSQLValueScan(t *testing.T) {
	orig := id.NewDLQID()

	v, err := orig.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	var scanned id.ID
	if err := scanned.Scan(v); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if scanned != orig {
		t.Errorf("SQL round trip changed the ID")
	}

	// Nil maps to NULL both ways.
	nv, err := id.Nil.Value()
	if err != nil {
		t.Fatalf("Nil.Value: %v", err)
	}
	if nv != nil {
		t.Errorf("Nil.Value() = %v, want nil", nv)
	}
	var fromNull id.ID
	if err := fromNull.Scan(nil); err != nil {
		t.Fatalf("Scan(nil): %v", err)
	}
	if !fromNull.IsNil() {
		t.Error("scanning NULL did not produce the nil ID")
	}
}
