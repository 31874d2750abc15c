package config

import (
	"fmt"

	postgrest "github.com/supabase-community/postgrest-go"
	storage_go "github.com/supabase-community/storage-go"
	supa "github.com/supabase-community/supabase-go"
)

// NewSupabaseClient builds the general-purpose Supabase client used for the
// bulk of table reads and writes. Row-level security applies to whatever key
// is passed in.
func NewSupabaseClient(cfg *AppConfig) (*supa.Client, error) {
	key := cfg.SupabaseServiceKey
	if key == "" {
		key = cfg.SupabaseAnonKey
	}

	client, err := supa.NewClient(cfg.SupabaseURL, key, nil)
	if err != nil {
		return nil, fmt.Errorf("error initializing Supabase client: %w", err)
	}
	return client, nil
}

// NewServiceClient builds a PostgREST client bound to the service-role key.
// It bypasses row-level security and is reserved for the few operations that
// legitimately need that: compound RPC functions, cross-user version deletion
// and notification fan-out.
func NewServiceClient(cfg *AppConfig) (*postgrest.Client, error) {
	client := postgrest.NewClient(cfg.SupabaseURL+"/rest/v1", "", map[string]string{
		"apikey":        cfg.SupabaseServiceKey,
		"Authorization": fmt.Sprintf("Bearer %s", cfg.SupabaseServiceKey),
	})
	if client.ClientError != nil {
		return nil, fmt.Errorf("failed to initialize service client: %w", client.ClientError)
	}
	return client, nil
}

// NewStorageClient builds the Supabase Storage client used for presigned
// upload and signed view URLs.
func NewStorageClient(cfg *AppConfig) *storage_go.Client {
	return storage_go.NewClient(cfg.SupabaseURL+"/storage/v1", cfg.SupabaseServiceKey, nil)
}
