package handlers

import (
	"encoding/json"
	"testing"

	"github.com/graphql-go/graphql"
)

func TestErrorMessage_Shape(t *testing.T) {
	msg := errorMessage("sub-1", "something broke")

	if msg.ID != "sub-1" || msg.Type != msgError {
		t.Errorf("unexpected envelope: %+v", msg)
	}

	var payload []GraphQLError
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("payload should be a GraphQL error list: %v", err)
	}
	if len(payload) != 1 || payload[0].Message != "something broke" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestMarshalPayload_FallsBackToEmptyObject(t *testing.T) {
	// channels are not JSON-serializable
	raw := marshalPayload(map[string]interface{}{"ch": make(chan int)})
	if string(raw) != `{}` {
		t.Errorf("expected empty-object fallback, got %s", raw)
	}
}

func TestResultOperation(t *testing.T) {
	result := &graphql.Result{
		Data: map[string]interface{}{
			"customerChanges": map[string]interface{}{
				"operation": "INSERT",
				"table":     "customer",
			},
		},
	}
	if got := resultOperation(result); got != "INSERT" {
		t.Errorf("resultOperation = %s, want INSERT", got)
	}

	empty := &graphql.Result{Data: map[string]interface{}{}}
	if got := resultOperation(empty); got != "unknown" {
		t.Errorf("resultOperation on empty data = %s, want unknown", got)
	}
}

func TestWSMessage_RoundTrip(t *testing.T) {
	raw := []byte(`{"id":"1","type":"subscribe","payload":{"query":"subscription { customerChanges { operation } }"}}`)

	var msg wsMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if msg.ID != "1" || msg.Type != msgSubscribe {
		t.Errorf("unexpected envelope: %+v", msg)
	}

	var payload subscribePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("payload unmarshal failed: %v", err)
	}
	if payload.Query == "" {
		t.Error("query should survive the round trip")
	}
}
