package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"restaurant-orders/internal/domain"
)

// AuditSink keeps one write-once record per settled order for offline analytics.
type AuditSink interface {
	Record(ctx context.Context, o domain.Order) error
}

// AuditKey is logs/YYYY/MM/DD/<orderID>.json, dated by the order's last update.
func AuditKey(o domain.Order) string {
	at := o.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("logs/%s/%s.json", at.UTC().Format("2006/01/02"), o.OrderID)
}

type MinioAudit struct {
	client *minio.Client
	bucket string
}

func NewMinioAudit(client *minio.Client, bucket string) *MinioAudit {
	return &MinioAudit{client: client, bucket: bucket}
}

func (a *MinioAudit) Record(ctx context.Context, o domain.Order) error {
	key := AuditKey(o)

	_, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("stat %s: %w", key, err)
	}

	body, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"restaurant-id": o.RestaurantID,
			"status":        string(o.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// MemoryAudit keeps records in process; the first write for a key wins.
type MemoryAudit struct {
	mu      sync.Mutex
	records map[string]domain.Order
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{records: make(map[string]domain.Order)}
}

func (a *MemoryAudit) Record(_ context.Context, o domain.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := AuditKey(o)
	if _, ok := a.records[key]; !ok {
		a.records[key] = o.Clone()
	}
	return nil
}

func (a *MemoryAudit) Records() map[string]domain.Order {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]domain.Order, len(a.records))
	for k, v := range a.records {
		out[k] = v
	}
	return out
}

type NopAudit struct{}

func (NopAudit) Record(context.Context, domain.Order) error { return nil }
