package warehouse

import (
	"context"
	"fmt"

	"affiliateflow/logger"
)

// Gold layer: analytical views over the silver tables. Views are recreated
// in dependency order on every run.

var goldViews = []struct {
	name  string
	query string
}{
	{
		name: "gold_affiliate_daily_metrics",
		query: `WITH daily_signups AS (
				SELECT
					DATE_TRUNC('day', register_time) AS date,
					affiliate_id,
					COUNT(*) AS new_signups
				FROM clientaccount
				GROUP BY DATE_TRUNC('day', register_time), affiliate_id
			),
			daily_trades AS (
				SELECT
					DATE_TRUNC('day', trade_time) AS date,
					c.affiliate_id,
					COUNT(*) AS total_trades,
					SUM(trade_volume) AS total_volume
				FROM tradeactivities t
				JOIN clientaccount c ON t.client_id = c.client_id
				GROUP BY DATE_TRUNC('day', trade_time), c.affiliate_id
			)
			SELECT
				COALESCE(s.date, t.date) AS date,
				COALESCE(s.affiliate_id, t.affiliate_id) AS affiliate_id,
				a.name AS affiliate_name,
				COALESCE(s.new_signups, 0) AS new_signups,
				COALESCE(t.total_trades, 0) AS total_trades,
				COALESCE(t.total_volume, 0) AS total_volume,
				CURRENT_TIMESTAMP AS last_updated
			FROM daily_signups s
			FULL OUTER JOIN daily_trades t
				ON s.date = t.date AND s.affiliate_id = t.affiliate_id
			LEFT JOIN affiliateaccount a
				ON COALESCE(s.affiliate_id, t.affiliate_id) = a.affiliate_id
			ORDER BY date DESC, affiliate_id`,
	},
	{
		name: "gold_affiliate_monthly_metrics",
		query: `WITH monthly_signups AS (
				SELECT
					DATE_TRUNC('month', register_time) AS month,
					affiliate_id,
					COUNT(*) AS new_signups
				FROM clientaccount
				GROUP BY DATE_TRUNC('month', register_time), affiliate_id
			),
			monthly_trades AS (
				SELECT
					DATE_TRUNC('month', trade_time) AS month,
					c.affiliate_id,
					COUNT(*) AS total_trades,
					SUM(trade_volume) AS total_volume,
					COUNT(DISTINCT t.client_id) AS active_traders
				FROM tradeactivities t
				JOIN clientaccount c ON t.client_id = c.client_id
				GROUP BY DATE_TRUNC('month', trade_time), c.affiliate_id
			),
			monthly_deposits AS (
				SELECT
					DATE_TRUNC('month', deposit_time) AS month,
					c.affiliate_id,
					COUNT(*) AS total_deposits,
					SUM(deposit_amount) AS deposit_volume
				FROM deposits d
				JOIN clientaccount c ON d.client_id = c.client_id
				GROUP BY DATE_TRUNC('month', deposit_time), c.affiliate_id
			)
			SELECT
				COALESCE(s.month, t.month, d.month) AS month,
				COALESCE(s.affiliate_id, t.affiliate_id, d.affiliate_id) AS affiliate_id,
				a.name AS affiliate_name,
				COALESCE(s.new_signups, 0) AS new_signups,
				COALESCE(t.total_trades, 0) AS total_trades,
				COALESCE(t.total_volume, 0) AS trading_volume,
				COALESCE(t.active_traders, 0) AS active_traders,
				COALESCE(d.total_deposits, 0) AS total_deposits,
				COALESCE(d.deposit_volume, 0) AS deposit_volume,
				CURRENT_TIMESTAMP AS last_updated
			FROM monthly_signups s
			FULL OUTER JOIN monthly_trades t
				ON s.month = t.month AND s.affiliate_id = t.affiliate_id
			FULL OUTER JOIN monthly_deposits d
				ON s.month = d.month AND s.affiliate_id = d.affiliate_id
			LEFT JOIN affiliateaccount a
				ON COALESCE(s.affiliate_id, t.affiliate_id, d.affiliate_id) = a.affiliate_id
			ORDER BY month DESC, affiliate_id`,
	},
	{
		name: "gold_affiliate_performance",
		query: `WITH affiliate_metrics AS (
				SELECT
					a.affiliate_id,
					a.name AS affiliate_name,
					COUNT(DISTINCT c.client_id) AS total_customers,
					COUNT(DISTINCT CASE
						WHEN c.register_time >= CURRENT_DATE - INTERVAL '30 days'
						THEN c.client_id
					END) AS new_signups_30d,
					COUNT(DISTINCT CASE
						WHEN EXISTS (
							SELECT 1
							FROM tradeactivities t
							WHERE t.client_id = c.client_id
							AND t.trade_time >= CURRENT_DATE - INTERVAL '30 days'
						)
						THEN c.client_id
					END) AS active_customers_30d
				FROM affiliateaccount a
				LEFT JOIN clientaccount c ON a.affiliate_id = c.affiliate_id
				GROUP BY a.affiliate_id, a.name
			),
			trading_metrics AS (
				SELECT
					c.affiliate_id,
					COUNT(t.client_id) AS trades_30d,
					COALESCE(SUM(t.trade_volume), 0) AS trading_volume_30d,
					CASE
						WHEN COUNT(t.client_id) > 0
						THEN COALESCE(SUM(t.trade_volume), 0) / COUNT(t.client_id)
						ELSE 0
					END AS avg_trade_size
				FROM clientaccount c
				JOIN tradeactivities t ON c.client_id = t.client_id
				WHERE t.trade_time >= CURRENT_DATE - INTERVAL '30 days'
				GROUP BY c.affiliate_id
			)
			SELECT
				m.affiliate_id,
				m.affiliate_name,
				m.total_customers,
				m.new_signups_30d,
				m.active_customers_30d,
				COALESCE(t.trades_30d, 0) AS trades_30d,
				COALESCE(t.trading_volume_30d, 0) AS trading_volume_30d,
				COALESCE(t.avg_trade_size, 0) AS avg_trade_size,
				CASE
					WHEN m.total_customers > 0
					THEN ROUND(100.0 * m.active_customers_30d / m.total_customers, 2)
					ELSE 0
				END AS monthly_activation_rate,
				CURRENT_TIMESTAMP AS last_updated
			FROM affiliate_metrics m
			LEFT JOIN trading_metrics t ON m.affiliate_id = t.affiliate_id
			ORDER BY trading_volume_30d DESC`,
	},
	{
		name: "gold_etl_affiliate_dashboard",
		query: `WITH load_counts AS (
				SELECT
					affiliate_id,
					COUNT(*) AS total_records,
					COUNT(*) FILTER (WHERE load_status = 'SUCCESS') AS success_count,
					COUNT(*) FILTER (WHERE load_status = 'ERROR') AS error_count,
					COUNT(*) FILTER (WHERE load_status = 'PARTIAL') AS partial_count,
					MAX(load_time) AS last_load_time
				FROM (
					SELECT affiliate_id, load_status, load_time FROM bronze_customers
					UNION ALL
					SELECT affiliate_id, load_status, load_time FROM bronze_trades
					UNION ALL
					SELECT affiliate_id, load_status, load_time FROM bronze_deposits
					UNION ALL
					SELECT affiliate_id, load_status, load_time FROM bronze_assets
				) b
				GROUP BY affiliate_id
			)
			SELECT
				p.affiliate_id,
				p.affiliate_name,
				p.total_customers,
				p.new_signups_30d,
				p.active_customers_30d,
				p.trades_30d,
				p.trading_volume_30d,
				p.avg_trade_size,
				p.monthly_activation_rate,
				COALESCE(l.total_records, 0) AS total_records,
				COALESCE(l.success_count, 0) AS success_count,
				COALESCE(l.error_count, 0) AS error_count,
				COALESCE(l.partial_count, 0) AS partial_count,
				CASE
					WHEN COALESCE(l.total_records, 0) > 0
					THEN ROUND(100.0 * l.success_count / l.total_records, 2)
					ELSE 0
				END AS success_rate,
				l.last_load_time,
				CASE
					WHEN COALESCE(l.error_count, 0) > 0 THEN 'ERROR'
					WHEN COALESCE(l.partial_count, 0) > 0 THEN 'PARTIAL'
					ELSE 'SUCCESS'
				END AS etl_status,
				CURRENT_TIMESTAMP AS last_updated
			FROM gold_affiliate_performance p
			LEFT JOIN load_counts l ON p.affiliate_id = l.affiliate_id
			ORDER BY p.affiliate_id`,
	},
}

// RunGold recreates the gold analytical views in dependency order.
func (db *DB) RunGold(ctx context.Context) error {
	log := db.log.WithComponent("warehouse").WithFields(logger.Fields{"layer": "gold"})
	log.Info("creating gold views")

	for _, v := range goldViews {
		if err := db.gorm.WithContext(ctx).Exec(
			fmt.Sprintf("DROP VIEW IF EXISTS %s CASCADE", v.name)).Error; err != nil {
			return fmt.Errorf("drop view %s: %w", v.name, err)
		}
		if err := db.gorm.WithContext(ctx).Exec(
			fmt.Sprintf("CREATE VIEW %s AS %s", v.name, v.query)).Error; err != nil {
			return fmt.Errorf("create view %s: %w", v.name, err)
		}
		log.WithFields(logger.Fields{"view": v.name}).Debug("view created")
	}

	log.Info("gold views ready")
	return nil
}
