package warehouse

import (
	"context"
	"testing"

	"affiliateflow/internal/extract"
	"affiliateflow/internal/model"
	"affiliateflow/logger"
)

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	db := &DB{log: logger.GetLogger()}
	if err := db.UpsertBatch(context.Background(), extract.EndpointDeposits, nil); err != nil {
		t.Fatalf("empty batch must be a no-op, got %v", err)
	}
}

func TestUpsertBatchUnknownEndpoint(t *testing.T) {
	db := &DB{log: logger.GetLogger()}
	records := []model.Record{model.DepositRecord{OrderID: "o1"}}
	if err := db.UpsertBatch(context.Background(), "order_book", records); err == nil {
		t.Fatalf("expected error for unknown endpoint")
	}
}

func TestUpsertBatchRejectsMismatchedRecords(t *testing.T) {
	db := &DB{log: logger.GetLogger()}
	records := []model.Record{model.DepositRecord{OrderID: "o1"}}
	if err := db.UpsertBatch(context.Background(), extract.EndpointCustomerList, records); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}

func TestBronzeTableNames(t *testing.T) {
	cases := map[string]string{
		BronzeCustomer{}.TableName(): "bronze_customers",
		BronzeTrade{}.TableName():    "bronze_trades",
		BronzeDeposit{}.TableName():  "bronze_deposits",
		BronzeAsset{}.TableName():    "bronze_assets",
	}
	for got, want := range cases {
		if got != want {
			t.Errorf("table name %q, want %q", got, want)
		}
	}
}
