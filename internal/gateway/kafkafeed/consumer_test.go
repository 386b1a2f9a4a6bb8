package kafkafeed

import (
	"encoding/json"
	"testing"
)

func TestBookDelta_UnmarshalsPriceLevels(t *testing.T) {
	raw := `{"symbol":"BTC_USD","timestamp":1700000000000,"bids":[[60000.0,1.5],[59990.5,2]],"asks":[[60010.25,0.75]]}`

	var delta bookDelta
	if err := json.Unmarshal([]byte(raw), &delta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if delta.Symbol != "BTC_USD" {
		t.Fatalf("expected symbol BTC_USD, got %q", delta.Symbol)
	}
	if delta.Timestamp != 1700000000000 {
		t.Fatalf("expected timestamp 1700000000000, got %d", delta.Timestamp)
	}
	if len(delta.Bids) != 2 || delta.Bids[0][0] != 60000.0 || delta.Bids[0][1] != 1.5 {
		t.Fatalf("unexpected bids: %+v", delta.Bids)
	}
	if len(delta.Asks) != 1 || delta.Asks[0][0] != 60010.25 {
		t.Fatalf("unexpected asks: %+v", delta.Asks)
	}
}

func TestBookDelta_MalformedJSON_Errors(t *testing.T) {
	var delta bookDelta
	if err := json.Unmarshal([]byte(`{not json`), &delta); err == nil {
		t.Fatalf("expected an error unmarshaling malformed JSON")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" broker-1:9092 , broker-2:9092,,broker-3:9092 ")
	want := []string{"broker-1:9092", "broker-2:9092", "broker-3:9092"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestSplitAndTrim_Empty(t *testing.T) {
	if got := splitAndTrim(""); len(got) != 0 {
		t.Fatalf("expected no entries for empty string, got %v", got)
	}
}
