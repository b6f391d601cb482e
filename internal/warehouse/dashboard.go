package warehouse

import (
	"context"
	"fmt"
	"time"
)

// Row shapes served by the dashboard API, read from the gold views.

type ETLStatusRow struct {
	DataSource   string     `gorm:"column:data_source" json:"data_source"`
	LastLoadTime *time.Time `gorm:"column:last_load_time" json:"last_load_time"`
	ETLStatus    string     `gorm:"column:etl_status" json:"etl_status"`
	TotalRecords int64      `gorm:"column:total_records" json:"total_records"`
	SuccessCount int64      `gorm:"column:success_count" json:"success_count"`
	ErrorCount   int64      `gorm:"column:error_count" json:"error_count"`
	PartialCount int64      `gorm:"column:partial_count" json:"partial_count"`
}

type TopAffiliateRow struct {
	AffiliateName         string  `gorm:"column:affiliate_name" json:"affiliate_name"`
	NewSignups30d         int64   `gorm:"column:new_signups_30d" json:"new_signups_30d"`
	TradingVolume30d      float64 `gorm:"column:trading_volume_30d" json:"trading_volume_30d"`
	MonthlyActivationRate float64 `gorm:"column:monthly_activation_rate" json:"monthly_activation_rate"`
	AvgTradeSize          float64 `gorm:"column:avg_trade_size" json:"avg_trade_size"`
}

type AffiliateMetricsRow struct {
	AffiliateName         string  `gorm:"column:affiliate_name" json:"affiliate_name"`
	TotalCustomers        int64   `gorm:"column:total_customers" json:"total_customers"`
	NewSignups30d         int64   `gorm:"column:new_signups_30d" json:"new_signups_30d"`
	ActiveCustomers30d    int64   `gorm:"column:active_customers_30d" json:"active_customers_30d"`
	TradingVolume30d      float64 `gorm:"column:trading_volume_30d" json:"trading_volume_30d"`
	MonthlyActivationRate float64 `gorm:"column:monthly_activation_rate" json:"monthly_activation_rate"`
	AvgTradeSize          float64 `gorm:"column:avg_trade_size" json:"avg_trade_size"`
}

type ETLIssueRow struct {
	DataSource   string     `gorm:"column:data_source" json:"data_source"`
	LastLoadTime *time.Time `gorm:"column:last_load_time" json:"last_load_time"`
	ErrorCount   int64      `gorm:"column:error_count" json:"error_count"`
	PartialCount int64      `gorm:"column:partial_count" json:"partial_count"`
}

// ETLStatus reports the per-affiliate load pipeline state.
func (db *DB) ETLStatus(ctx context.Context) ([]ETLStatusRow, error) {
	var rows []ETLStatusRow
	err := db.gorm.WithContext(ctx).Raw(`
		SELECT
			affiliate_name AS data_source,
			last_load_time,
			etl_status,
			total_records,
			success_count,
			error_count,
			partial_count
		FROM gold_etl_affiliate_dashboard
		ORDER BY affiliate_name`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query etl status: %w", err)
	}
	return rows, nil
}

// TopAffiliates returns the highest-volume affiliates over the last 30 days.
func (db *DB) TopAffiliates(ctx context.Context, limit int) ([]TopAffiliateRow, error) {
	var rows []TopAffiliateRow
	err := db.gorm.WithContext(ctx).Raw(`
		SELECT
			affiliate_name,
			new_signups_30d,
			trading_volume_30d,
			monthly_activation_rate,
			avg_trade_size
		FROM gold_etl_affiliate_dashboard
		WHERE affiliate_name IS NOT NULL
		ORDER BY trading_volume_30d DESC
		LIMIT ?`, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query top affiliates: %w", err)
	}
	return rows, nil
}

// AffiliateMetrics returns the full 30-day metric set per affiliate.
func (db *DB) AffiliateMetrics(ctx context.Context) ([]AffiliateMetricsRow, error) {
	var rows []AffiliateMetricsRow
	err := db.gorm.WithContext(ctx).Raw(`
		SELECT
			affiliate_name,
			total_customers,
			new_signups_30d,
			active_customers_30d,
			trading_volume_30d,
			monthly_activation_rate,
			avg_trade_size
		FROM gold_etl_affiliate_dashboard
		WHERE affiliate_name IS NOT NULL
		ORDER BY trading_volume_30d DESC`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query affiliate metrics: %w", err)
	}
	return rows, nil
}

// ETLIssues lists affiliates whose latest loads saw errors or partial pages.
func (db *DB) ETLIssues(ctx context.Context) ([]ETLIssueRow, error) {
	var rows []ETLIssueRow
	err := db.gorm.WithContext(ctx).Raw(`
		SELECT
			affiliate_name AS data_source,
			last_load_time,
			error_count,
			partial_count
		FROM gold_etl_affiliate_dashboard
		WHERE affiliate_name IS NOT NULL
		  AND (error_count > 0 OR partial_count > 0)
		ORDER BY affiliate_name`).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query etl issues: %w", err)
	}
	return rows, nil
}
