package warehouse

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"affiliateflow/internal/extract"
	"affiliateflow/internal/model"
)

// Bronze mirror tables. Primary keys follow each endpoint's natural key so
// replayed batches upsert instead of duplicating.

type BronzeCustomer struct {
	AffiliateID  string    `gorm:"column:affiliate_id;primaryKey;size:50"`
	ClientID     string    `gorm:"column:client_id;primaryKey;size:50"`
	RegisterTime time.Time `gorm:"column:register_time"`
	LoadTime     time.Time `gorm:"column:load_time"`
	LoadStatus   string    `gorm:"column:load_status;size:10"`
}

func (BronzeCustomer) TableName() string { return "bronze_customers" }

type BronzeTrade struct {
	AffiliateID string    `gorm:"column:affiliate_id;primaryKey;size:50"`
	TradeKey    string    `gorm:"column:trade_key;primaryKey;size:100"`
	ClientID    string    `gorm:"column:client_id;size:50"`
	TradeVolume float64   `gorm:"column:trade_volume"`
	TradeTime   time.Time `gorm:"column:trade_time"`
	LoadTime    time.Time `gorm:"column:load_time"`
	LoadStatus  string    `gorm:"column:load_status;size:10"`
}

func (BronzeTrade) TableName() string { return "bronze_trades" }

type BronzeDeposit struct {
	OrderID       string    `gorm:"column:order_id;primaryKey;size:50"`
	AffiliateID   string    `gorm:"column:affiliate_id;size:50"`
	ClientID      string    `gorm:"column:client_id;size:50"`
	DepositTime   time.Time `gorm:"column:deposit_time"`
	DepositCoin   string    `gorm:"column:deposit_coin;size:20"`
	DepositAmount float64   `gorm:"column:deposit_amount"`
	LoadTime      time.Time `gorm:"column:load_time"`
	LoadStatus    string    `gorm:"column:load_status;size:10"`
}

func (BronzeDeposit) TableName() string { return "bronze_deposits" }

type BronzeAsset struct {
	AffiliateID string    `gorm:"column:affiliate_id;primaryKey;size:50"`
	ClientID    string    `gorm:"column:client_id;primaryKey;size:50"`
	Balance     float64   `gorm:"column:balance"`
	UpdateTime  time.Time `gorm:"column:update_time"`
	Remark      string    `gorm:"column:remark"`
	LoadTime    time.Time `gorm:"column:load_time"`
	LoadStatus  string    `gorm:"column:load_status;size:10"`
}

func (BronzeAsset) TableName() string { return "bronze_assets" }

// EnsureBronzeTables creates or migrates the bronze mirror tables.
func (db *DB) EnsureBronzeTables(ctx context.Context) error {
	return db.gorm.WithContext(ctx).AutoMigrate(
		&BronzeCustomer{},
		&BronzeTrade{},
		&BronzeDeposit{},
		&BronzeAsset{},
	)
}

// UpsertBatch mirrors one bronze batch into its endpoint table. Conflicting
// natural keys take the newer row; re-running a window is a no-op beyond
// refreshed load metadata.
func (db *DB) UpsertBatch(ctx context.Context, endpoint string, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}
	switch endpoint {
	case extract.EndpointCustomerList:
		return db.upsertCustomers(ctx, records)
	case extract.EndpointTrades:
		return db.upsertTrades(ctx, records)
	case extract.EndpointDeposits:
		return db.upsertDeposits(ctx, records)
	case extract.EndpointAssets:
		return db.upsertAssets(ctx, records)
	default:
		return fmt.Errorf("unknown bronze endpoint %q", endpoint)
	}
}

func (db *DB) upsertCustomers(ctx context.Context, records []model.Record) error {
	rows := make([]BronzeCustomer, 0, len(records))
	for _, r := range records {
		c, ok := r.(model.CustomerRecord)
		if !ok {
			return fmt.Errorf("expected CustomerRecord, got %T", r)
		}
		rows = append(rows, BronzeCustomer{
			AffiliateID:  c.AffiliateID,
			ClientID:     c.ClientID,
			RegisterTime: c.RegisterTime,
			LoadTime:     c.LoadTime,
			LoadStatus:   string(c.LoadStatus),
		})
	}
	return db.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"register_time", "load_time", "load_status"}),
	}).Create(&rows).Error
}

func (db *DB) upsertTrades(ctx context.Context, records []model.Record) error {
	rows := make([]BronzeTrade, 0, len(records))
	for _, r := range records {
		t, ok := r.(model.TradeRecord)
		if !ok {
			return fmt.Errorf("expected TradeRecord, got %T", r)
		}
		rows = append(rows, BronzeTrade{
			AffiliateID: t.AffiliateID,
			TradeKey:    t.Key(),
			ClientID:    t.ClientID,
			TradeVolume: t.TradeVolume,
			TradeTime:   t.TradeTime,
			LoadTime:    t.LoadTime,
			LoadStatus:  string(t.LoadStatus),
		})
	}
	return db.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "trade_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"client_id", "trade_volume", "trade_time", "load_time", "load_status"}),
	}).Create(&rows).Error
}

func (db *DB) upsertDeposits(ctx context.Context, records []model.Record) error {
	rows := make([]BronzeDeposit, 0, len(records))
	for _, r := range records {
		d, ok := r.(model.DepositRecord)
		if !ok {
			return fmt.Errorf("expected DepositRecord, got %T", r)
		}
		rows = append(rows, BronzeDeposit{
			OrderID:       d.OrderID,
			AffiliateID:   d.AffiliateID,
			ClientID:      d.ClientID,
			DepositTime:   d.DepositTime,
			DepositCoin:   d.DepositCoin,
			DepositAmount: d.DepositAmount,
			LoadTime:      d.LoadTime,
			LoadStatus:    string(d.LoadStatus),
		})
	}
	return db.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"affiliate_id", "client_id", "deposit_time", "deposit_coin", "deposit_amount", "load_time", "load_status"}),
	}).Create(&rows).Error
}

func (db *DB) upsertAssets(ctx context.Context, records []model.Record) error {
	rows := make([]BronzeAsset, 0, len(records))
	for _, r := range records {
		a, ok := r.(model.AssetRecord)
		if !ok {
			return fmt.Errorf("expected AssetRecord, got %T", r)
		}
		rows = append(rows, BronzeAsset{
			AffiliateID: a.AffiliateID,
			ClientID:    a.ClientID,
			Balance:     a.Balance,
			UpdateTime:  a.UpdateTime,
			Remark:      a.Remark,
			LoadTime:    a.LoadTime,
			LoadStatus:  string(a.LoadStatus),
		})
	}
	// Balance snapshots: the latest snapshot per client wins.
	return db.gorm.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "affiliate_id"}, {Name: "client_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance", "update_time", "remark", "load_time", "load_status"}),
	}).Create(&rows).Error
}
