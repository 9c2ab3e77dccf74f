package encoding

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []int64{0, 1, -1, 127, 128, -300, 1 << 40, -(1 << 40)}

	var buf bytes.Buffer
	for _, v := range values {
		PutAsVarint(&buf, v)
	}
	r := bytes.NewReader(buf.Bytes())
	for _, want := range values {
		if got := GetAsVarint(r); got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestUVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 16384, 1 << 32, 1<<64 - 1}

	var buf bytes.Buffer
	for _, v := range values {
		PutAsUVarint(&buf, v)
	}
	r := bytes.NewReader(buf.Bytes())
	for _, want := range values {
		if got := GetAsUVarint(r); got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestJSONiterRoundTrip(t *testing.T) {
	type frame struct {
		Serial string  `json:"serial"`
		Index  uint32  `json:"index"`
		Volts  float64 `json:"volts"`
	}
	in := frame{Serial: "BAT-1", Index: 42, Volts: 51.25}

	data, err := JSONiter.Marshal(&in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out frame
	if err := JSONiter.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out != in {
		t.Errorf("got %+v, want %+v", out, in)
	}
}

func TestMaybeGetInt64(t *testing.T) {
	if v, ok := MaybeGetInt64(json.Number("42")); !ok || v != 42 {
		t.Errorf("json.Number: got %d, %v", v, ok)
	}
	if v, ok := MaybeGetInt64("17"); !ok || v != 17 {
		t.Errorf("string: got %d, %v", v, ok)
	}
	if _, ok := MaybeGetInt64("not a number"); ok {
		t.Error("garbage accepted")
	}
}
