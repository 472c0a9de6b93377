package jsoncodec

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type payload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func TestEncodeDecode(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, payload{ID: 1, Name: "A"}); err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"name":"A"`) {
		t.Fatalf("unexpected encoding %s", buf.String())
	}

	var out payload
	if err := Decode(&buf, &out); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if out.ID != 1 || out.Name != "A" {
		t.Fatalf("unexpected value %#v", out)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	var out payload
	if err := Decode(strings.NewReader(""), &out); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
	if err := Decode(nil, &out); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody for nil reader, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	var out payload
	err := Decode(strings.NewReader(`{"id":`), &out)
	if err == nil || errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected syntax error, got %v", err)
	}
}

func TestUnmarshal(t *testing.T) {
	var out payload
	if err := Unmarshal([]byte(`{"id":9,"name":"x"}`), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	data, err := Marshal(out)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != `{"id":9,"name":"x"}` {
		t.Fatalf("unexpected output %s", data)
	}
}
