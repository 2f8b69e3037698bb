package cdc

import (
	"testing"

	"github.com/jackc/pglogrepl"
	"github.com/rs/zerolog"
)

func testEngine() *Engine {
	return NewEngine(Config{
		SlotName:        "test_slot",
		PublicationName: "test_pub",
	}, NewBroadcaster(zerolog.Nop()), zerolog.Nop())
}

func TestReplicationURL(t *testing.T) {
	cases := map[string]string{
		"postgres://app@localhost/db":             "postgres://app@localhost/db?replication=database",
		"postgres://app@localhost/db?sslmode=off": "postgres://app@localhost/db?sslmode=off&replication=database",
	}
	for in, want := range cases {
		if got := replicationURL(in); got != want {
			t.Errorf("replicationURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDecodeTuple(t *testing.T) {
	e := testEngine()

	rel := &pglogrepl.RelationMessage{
		RelationID:   1,
		Namespace:    "public",
		RelationName: "customer",
		Columns: []*pglogrepl.RelationMessageColumn{
			{Name: "customer_id", DataType: 23}, // int4
			{Name: "name", DataType: 25},        // text
			{Name: "email", DataType: 25},
			{Name: "avatar", DataType: 17}, // bytea
		},
	}
	tuple := &pglogrepl.TupleData{
		Columns: []*pglogrepl.TupleDataColumn{
			{DataType: 't', Data: []byte("7")},
			{DataType: 't', Data: []byte("Ada")},
			{DataType: 'n'},
			{DataType: 'u'}, // unchanged TOAST value
		},
	}

	row := e.decodeTuple(rel, tuple)

	if row["customer_id"] != int32(7) {
		t.Errorf("int4 column should decode to int32, got %T %v", row["customer_id"], row["customer_id"])
	}
	if row["name"] != "Ada" {
		t.Errorf("text column should decode to string, got %v", row["name"])
	}
	if v, present := row["email"]; !present || v != nil {
		t.Errorf("null column should be present as nil, got %v (%v)", v, present)
	}
	if _, present := row["avatar"]; present {
		t.Error("unchanged TOAST column must not appear in the event")
	}
}

func TestDecodeTuple_NilTuple(t *testing.T) {
	e := testEngine()
	if row := e.decodeTuple(&pglogrepl.RelationMessage{}, nil); row != nil {
		t.Errorf("nil tuple should decode to nil, got %v", row)
	}
}

func TestDecodeTextColumn_UnknownOIDFallsBackToString(t *testing.T) {
	e := testEngine()
	if got := e.decodeTextColumn(999999, []byte("raw")); got != "raw" {
		t.Errorf("unknown OID should fall back to raw text, got %v", got)
	}
}

func TestNewEngine_HeartbeatDefault(t *testing.T) {
	e := NewEngine(Config{}, NewBroadcaster(zerolog.Nop()), zerolog.Nop())
	if e.cfg.HeartbeatInterval <= 0 {
		t.Error("expected heartbeat interval defaulted")
	}
}
