package store

import (
	"context"
	"strings"
	"testing"

	"github.com/flowloom/loom/internal/config"
	"github.com/flowloom/loom/internal/crypto"
	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/store/memory"
)

func testGraph(appPassword string) service.WorkflowGraph {
	return service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			{Name: "trigger", Kind: "manual_trigger", Parameters: map[string]any{}},
			{Name: "notify", Kind: "send_email", Parameters: map[string]any{
				"from_email":  "bot@example.com",
				"app_password": appPassword,
				"to":          "ops@example.com",
				"subject":     "hi",
				"body":        "hi",
			}},
		},
		Connections: map[string][]string{"trigger": {"notify"}},
		Triggers:    []string{"trigger"},
	}
}

func TestEncryptingStoreRoundTrip(t *testing.T) {
	key, err := crypto.DeriveKey("unit-test-key")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	st := withEncryption(memory.New(), key)
	ctx := context.Background()

	created, err := st.CreateWorkflow(ctx, service.Workflow{
		Name:  "notify-on-event",
		Graph: testGraph("super-secret-app-password"),
	})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	node := created.Graph.NodeByName("notify")
	if got := node.Parameters["app_password"]; got != "super-secret-app-password" {
		t.Fatalf("CreateWorkflow should return decrypted value, got %v", got)
	}

	fetched, err := st.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got := fetched.Graph.NodeByName("notify").Parameters["app_password"]; got != "super-secret-app-password" {
		t.Fatalf("GetWorkflow should return decrypted value, got %v", got)
	}

	// The underlying backend must never see the plaintext.
	raw := st.(*encryptingStore).Storer
	rawRecord, err := raw.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("raw GetWorkflow: %v", err)
	}
	rawValue, _ := rawRecord.Graph.NodeByName("notify").Parameters["app_password"].(string)
	if !strings.HasPrefix(rawValue, "enc:") {
		t.Fatalf("expected backend to hold an encrypted value, got %q", rawValue)
	}
	if rawValue == "super-secret-app-password" {
		t.Fatal("backend must not store the app_password in plaintext")
	}
}

func TestEncryptingStoreNoKeyPassthrough(t *testing.T) {
	st, err := New(context.Background(), config.Store{}, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, ok := st.(*encryptingStore); ok {
		t.Fatal("an empty crypto key must not wrap the store in encryption")
	}
}
