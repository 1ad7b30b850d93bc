//go:build js && wasm

package credentials

import (
	"context"
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"
)

// KVBinding is the KV namespace binding name configured in wrangler.toml.
const KVBinding = "AMAZONQ_KV"

// CloudflareKVStore stores credentials in a Cloudflare Workers KV namespace.
type CloudflareKVStore struct {
	kvStore *kv.Namespace
}

// NewCloudflareKVStore opens the KV namespace bound as binding.
func NewCloudflareKVStore(binding string) (*CloudflareKVStore, error) {
	kvStore, err := kv.NewNamespace(binding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &CloudflareKVStore{kvStore: kvStore}, nil
}

func (c *CloudflareKVStore) Get(_ context.Context, key string) ([]byte, error) {
	credsJSON, err := c.kvStore.GetString(key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials from KV: %w", err)
	}
	if credsJSON == "" {
		return nil, ErrNotFound
	}
	return []byte(credsJSON), nil
}

func (c *CloudflareKVStore) Put(_ context.Context, key string, value []byte) error {
	if err := c.kvStore.PutString(key, string(value), nil); err != nil {
		return fmt.Errorf("failed to store credentials in KV: %w", err)
	}
	return nil
}
