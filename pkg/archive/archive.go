// Package archive stores raw webhook payloads in Google Cloud Storage for
// audit. The normalized settlement event is what the ledger acts on; the
// archived payload is the evidence trail when a settlement is questioned.
package archive

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Client wraps the GCS bucket used for payload archival
type Client struct {
	client *storage.Client
	bucket string
}

// Config holds configuration for the archive client
type Config struct {
	BucketName     string
	CredentialsKey string // JSON key as string
}

var (
	defaultClient *Client
	mu            sync.RWMutex
)

// NewClient creates a new archive client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("archive bucket name is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsKey != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsKey)))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &Client{client: client, bucket: cfg.BucketName}, nil
}

// SetDefault installs the process-wide archive client. A nil client
// disables archival.
func SetDefault(c *Client) {
	mu.Lock()
	defer mu.Unlock()
	defaultClient = c
}

// Default returns the process-wide archive client, or nil when archival is
// not configured.
func Default() *Client {
	mu.RLock()
	defer mu.RUnlock()
	return defaultClient
}

// StoreWebhookPayload writes one raw webhook body under a path keyed by
// processor, day and event key. Objects are immutable once written;
// repeated deliveries of the same event overwrite with identical content.
func (c *Client) StoreWebhookPayload(ctx context.Context, processor, eventKey string, payload []byte) (string, error) {
	day := time.Now().UTC().Format("2006/01/02")
	objectPath := fmt.Sprintf("webhooks/%s/%s/%s.json", processor, day, eventKey)

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	w := c.client.Bucket(c.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize payload object: %w", err)
	}

	return objectPath, nil
}

// StoreWebhookPayloadAsync archives via the default client without blocking
// the caller. Failures are logged by the caller's goroutine; archival is
// never load-bearing.
func StoreWebhookPayloadAsync(processor, eventKey string, payload []byte) {
	c := Default()
	if c == nil {
		return
	}
	body := make([]byte, len(payload))
	copy(body, payload)
	go func() {
		if _, err := c.StoreWebhookPayload(context.Background(), processor, eventKey, body); err != nil {
			fmt.Printf("[archive] failed to store %s payload %s: %v\n", processor, eventKey, err)
		}
	}()
}
