package warehouse

import (
	"context"
	"fmt"

	"affiliateflow/logger"
)

// Silver layer: cleaned entity tables derived from the bronze mirrors.
// Statements are idempotent; conflicting keys take the newest bronze row by
// load_time (latest wins).

var silverTables = []struct {
	name string
	ddl  string
}{
	{
		name: "affiliateaccount",
		ddl: `CREATE TABLE IF NOT EXISTS affiliateaccount (
			affiliate_id VARCHAR(50) PRIMARY KEY,
			name VARCHAR(100),
			join_date DATE,
			last_updated TIMESTAMP
		)`,
	},
	{
		name: "clientaccount",
		ddl: `CREATE TABLE IF NOT EXISTS clientaccount (
			client_id VARCHAR(50) PRIMARY KEY,
			affiliate_id VARCHAR(50),
			register_time TIMESTAMP,
			last_updated TIMESTAMP
		)`,
	},
	{
		name: "deposits",
		ddl: `CREATE TABLE IF NOT EXISTS deposits (
			order_id VARCHAR(50) PRIMARY KEY,
			client_id VARCHAR(50),
			deposit_time TIMESTAMP,
			deposit_coin VARCHAR(20),
			deposit_amount DECIMAL(18,8),
			last_updated TIMESTAMP
		)`,
	},
	{
		name: "tradeactivities",
		ddl: `CREATE TABLE IF NOT EXISTS tradeactivities (
			trade_key VARCHAR(100) PRIMARY KEY,
			client_id VARCHAR(50),
			trade_time TIMESTAMP,
			trade_volume DECIMAL(18,8),
			last_updated TIMESTAMP
		)`,
	},
	{
		name: "assets",
		ddl: `CREATE TABLE IF NOT EXISTS assets (
			client_id VARCHAR(50) PRIMARY KEY,
			affiliate_id VARCHAR(50),
			balance DECIMAL(18,8),
			last_update_time TIMESTAMP,
			remark VARCHAR(255),
			last_updated TIMESTAMP
		)`,
	},
}

var silverTransforms = []struct {
	target string
	query  string
}{
	{
		target: "affiliateaccount",
		query: `INSERT INTO affiliateaccount (affiliate_id, name, join_date, last_updated)
			SELECT
				affiliate_id,
				'Affiliate ' || affiliate_id AS name,
				DATE(MIN(register_time)) AS join_date,
				CURRENT_TIMESTAMP AS last_updated
			FROM bronze_customers
			WHERE affiliate_id IS NOT NULL
			GROUP BY affiliate_id
			ON CONFLICT (affiliate_id) DO UPDATE
			SET join_date = LEAST(affiliateaccount.join_date, EXCLUDED.join_date),
				last_updated = EXCLUDED.last_updated`,
	},
	{
		target: "clientaccount",
		query: `INSERT INTO clientaccount (client_id, affiliate_id, register_time, last_updated)
			SELECT DISTINCT ON (client_id)
				client_id,
				affiliate_id,
				register_time,
				CURRENT_TIMESTAMP AS last_updated
			FROM bronze_customers
			WHERE client_id IS NOT NULL AND affiliate_id IS NOT NULL
			ORDER BY client_id, load_time DESC
			ON CONFLICT (client_id) DO UPDATE
			SET affiliate_id = EXCLUDED.affiliate_id,
				register_time = EXCLUDED.register_time,
				last_updated = EXCLUDED.last_updated`,
	},
	{
		target: "deposits",
		query: `INSERT INTO deposits (order_id, client_id, deposit_time, deposit_coin, deposit_amount, last_updated)
			SELECT DISTINCT ON (order_id)
				order_id,
				client_id,
				deposit_time,
				UPPER(deposit_coin) AS deposit_coin,
				deposit_amount,
				CURRENT_TIMESTAMP AS last_updated
			FROM bronze_deposits
			WHERE order_id IS NOT NULL AND client_id IS NOT NULL
			ORDER BY order_id, load_time DESC
			ON CONFLICT (order_id) DO UPDATE
			SET client_id = EXCLUDED.client_id,
				deposit_time = EXCLUDED.deposit_time,
				deposit_coin = EXCLUDED.deposit_coin,
				deposit_amount = EXCLUDED.deposit_amount,
				last_updated = EXCLUDED.last_updated`,
	},
	{
		target: "tradeactivities",
		query: `INSERT INTO tradeactivities (trade_key, client_id, trade_time, trade_volume, last_updated)
			SELECT DISTINCT ON (trade_key)
				trade_key,
				client_id,
				trade_time,
				trade_volume,
				CURRENT_TIMESTAMP AS last_updated
			FROM bronze_trades
			WHERE client_id IS NOT NULL
			ORDER BY trade_key, load_time DESC
			ON CONFLICT (trade_key) DO UPDATE
			SET client_id = EXCLUDED.client_id,
				trade_time = EXCLUDED.trade_time,
				trade_volume = EXCLUDED.trade_volume,
				last_updated = EXCLUDED.last_updated`,
	},
	{
		target: "assets",
		query: `INSERT INTO assets (client_id, affiliate_id, balance, last_update_time, remark, last_updated)
			SELECT DISTINCT ON (client_id)
				client_id,
				affiliate_id,
				balance,
				update_time AS last_update_time,
				remark,
				CURRENT_TIMESTAMP AS last_updated
			FROM bronze_assets
			WHERE client_id IS NOT NULL
			ORDER BY client_id, load_time DESC
			ON CONFLICT (client_id) DO UPDATE
			SET affiliate_id = EXCLUDED.affiliate_id,
				balance = EXCLUDED.balance,
				last_update_time = EXCLUDED.last_update_time,
				remark = EXCLUDED.remark,
				last_updated = EXCLUDED.last_updated`,
	},
}

// RunSilver refreshes the silver tables from the bronze mirrors inside one
// transaction, so readers never see a half-applied refresh.
func (db *DB) RunSilver(ctx context.Context) error {
	log := db.log.WithComponent("warehouse").WithFields(logger.Fields{"layer": "silver"})
	log.Info("running silver transformations")

	for _, t := range silverTables {
		if err := db.gorm.WithContext(ctx).Exec(t.ddl).Error; err != nil {
			return fmt.Errorf("create silver table %s: %w", t.name, err)
		}
	}

	tx := db.gorm.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin silver transaction: %w", tx.Error)
	}
	for _, t := range silverTransforms {
		if err := tx.Exec(t.query).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("transform %s: %w", t.target, err)
		}
		log.WithFields(logger.Fields{"table": t.target}).Debug("silver table refreshed")
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit silver transaction: %w", err)
	}

	log.Info("silver transformations complete")
	return nil
}
