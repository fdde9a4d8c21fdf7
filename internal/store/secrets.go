package store

import (
	"context"
	"fmt"

	"github.com/flowloom/loom/internal/crypto"
	"github.com/flowloom/loom/internal/service"
)

// secretParams maps a node kind to the parameter key within it that holds
// a credential needing at-rest encryption.
var secretParams = map[string]string{
	"send_email": "app_password",
}

// encryptingStore wraps a Storer so every WorkflowGraph it persists has
// its node credentials (currently SendEmail's app_password) encrypted on
// the way in and decrypted on the way out. Every other method is
// delegated unchanged.
type encryptingStore struct {
	Storer
	key []byte
}

// withEncryption wraps next so workflow graphs are transparently
// encrypted/decrypted at the persistence boundary, grounded on the
// teacher's encrypted-provider-config pattern (internal/crypto) applied
// to this specification's one credential-bearing node kind.
func withEncryption(next Storer, key []byte) Storer {
	return &encryptingStore{Storer: next, key: key}
}

func (s *encryptingStore) ListWorkflows(ctx context.Context) ([]service.Workflow, error) {
	workflows, err := s.Storer.ListWorkflows(ctx)
	if err != nil {
		return nil, err
	}
	for i := range workflows {
		if err := decryptSecrets(&workflows[i].Graph, s.key); err != nil {
			return nil, fmt.Errorf("decrypt workflow %q: %w", workflows[i].ID, err)
		}
	}
	return workflows, nil
}

func (s *encryptingStore) GetWorkflow(ctx context.Context, id string) (*service.Workflow, error) {
	wf, err := s.Storer.GetWorkflow(ctx, id)
	if err != nil || wf == nil {
		return wf, err
	}
	if err := decryptSecrets(&wf.Graph, s.key); err != nil {
		return nil, fmt.Errorf("decrypt workflow %q: %w", id, err)
	}
	return wf, nil
}

func (s *encryptingStore) CreateWorkflow(ctx context.Context, w service.Workflow) (*service.Workflow, error) {
	if err := encryptSecrets(&w.Graph, s.key); err != nil {
		return nil, fmt.Errorf("encrypt workflow %q: %w", w.Name, err)
	}
	record, err := s.Storer.CreateWorkflow(ctx, w)
	if err != nil || record == nil {
		return record, err
	}
	if err := decryptSecrets(&record.Graph, s.key); err != nil {
		return nil, fmt.Errorf("decrypt workflow %q: %w", record.ID, err)
	}
	return record, nil
}

func (s *encryptingStore) UpdateWorkflow(ctx context.Context, id string, w service.Workflow) (*service.Workflow, error) {
	if err := encryptSecrets(&w.Graph, s.key); err != nil {
		return nil, fmt.Errorf("encrypt workflow %q: %w", id, err)
	}
	record, err := s.Storer.UpdateWorkflow(ctx, id, w)
	if err != nil || record == nil {
		return record, err
	}
	if err := decryptSecrets(&record.Graph, s.key); err != nil {
		return nil, fmt.Errorf("decrypt workflow %q: %w", id, err)
	}
	return record, nil
}

func encryptSecrets(graph *service.WorkflowGraph, key []byte) error {
	return transformSecrets(graph, func(plaintext string) (string, error) {
		return crypto.EncryptAppPassword(plaintext, key)
	})
}

func decryptSecrets(graph *service.WorkflowGraph, key []byte) error {
	return transformSecrets(graph, func(ciphertext string) (string, error) {
		return crypto.DecryptAppPassword(ciphertext, key)
	})
}

func transformSecrets(graph *service.WorkflowGraph, transform func(string) (string, error)) error {
	// Rewrite copies of the node slice and of each changed parameter map, so
	// a graph shared with the caller or held by the backend is not altered.
	graph.Nodes = append([]service.WorkflowNode(nil), graph.Nodes...)
	for i := range graph.Nodes {
		field, ok := secretParams[graph.Nodes[i].Kind]
		if !ok {
			continue
		}
		v, ok := graph.Nodes[i].Parameters[field].(string)
		if !ok || v == "" {
			continue
		}
		out, err := transform(v)
		if err != nil {
			return fmt.Errorf("node %q field %q: %w", graph.Nodes[i].Name, field, err)
		}
		params := make(map[string]any, len(graph.Nodes[i].Parameters))
		for k, pv := range graph.Nodes[i].Parameters {
			params[k] = pv
		}
		params[field] = out
		graph.Nodes[i].Parameters = params
	}
	return nil
}
