package codec

import (
	"bytes"
	"testing"
)

type sample struct {
	_     struct{} `cbor:",toarray"`
	Name  string
	Count int64
	Blob  []byte
}

func TestMarshalDeterministic(t *testing.T) {
	in := sample{Name: "a", Count: 42, Blob: []byte{1, 2, 3}}
	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(in)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding not deterministic: %x vs %x", first, again)
		}
	}

	var out sample
	if err := Unmarshal(first, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || !bytes.Equal(out.Blob, in.Blob) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestUnmarshalRejectsTrailingBytes(t *testing.T) {
	data, err := Marshal(sample{Name: "x"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	data = append(data, 0x00)

	var out sample
	if err := Unmarshal(data, &out); err == nil {
		t.Fatalf("expected error for trailing data")
	}
}
