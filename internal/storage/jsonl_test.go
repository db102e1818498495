package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"walletTracker/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.jsonl")
	store := NewJsonlStorage(path)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := store.PutNotification(context.Background(), model.NotificationRecord{
				GroupID:      "g",
				TxHash:       "0xabc",
				Network:      model.Mainnet,
				Category:     model.CategoryNativeFungible,
				KindsPresent: []model.AssetKind{model.KindNative, model.KindFungible},
				Recipients:   []string{"alice"},
				Delivered:    i,
				SettledAt:    time.Unix(1700000000, 0).UTC(),
			})
			if err != nil {
				t.Errorf("put notification: %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := ReadNotifications(path)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if len(records) != 8 {
		t.Fatalf("expected 8 records, got %d", len(records))
	}
	if records[0].TxHash != "0xabc" || len(records[0].KindsPresent) != 2 || records[0].KindsPresent[1] != model.KindFungible {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestReadNotificationsMissingFile(t *testing.T) {
	if _, err := ReadNotifications(filepath.Join(t.TempDir(), "absent.jsonl")); err == nil {
		t.Fatalf("expected error for missing ledger")
	}
}
