package permstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/supabase-community/supabase-go"
)

// SupabaseKV stores flags as small objects in a Supabase storage bucket. It
// plays the role of the host-provided cloud key/value bridge.
type SupabaseKV struct {
	client *supabase.Client
	bucket string
}

// SupabaseConfig identifies the project and bucket.
type SupabaseConfig struct {
	URL            string
	ServiceRoleKey string
	Bucket         string
}

// NewSupabase builds the cloud KV. Returns an error instead of panicking so
// callers can degrade to the local store.
func NewSupabase(cfg SupabaseConfig) (*SupabaseKV, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("permstore: create supabase client: %w", err)
	}
	return &SupabaseKV{client: client, bucket: cfg.Bucket}, nil
}

func (s *SupabaseKV) SetItem(_ context.Context, key, value string) error {
	_, err := s.client.Storage.UploadFile(s.bucket, key, bytes.NewReader([]byte(value)))
	if err != nil {
		return fmt.Errorf("permstore: upload %s: %w", key, err)
	}
	return nil
}

func (s *SupabaseKV) GetItem(_ context.Context, key string) (string, error) {
	data, err := s.client.Storage.DownloadFile(s.bucket, key)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("permstore: download %s: %w", key, err)
	}
	return string(data), nil
}

func (s *SupabaseKV) RemoveItem(_ context.Context, key string) error {
	_, err := s.client.Storage.RemoveFile(s.bucket, []string{key})
	if err != nil {
		return fmt.Errorf("permstore: remove %s: %w", key, err)
	}
	return nil
}
