package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"listingshort/internal/backtest"
	"listingshort/internal/store"
	storemodel "listingshort/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

type runModel = storemodel.BacktestRunModel
type tradeModel = storemodel.BacktestTradeModel

const (
	defaultRunLimit   = 50
	defaultTradeLimit = 1000
	insertBatchSize   = 200
)

// GormStore 基于 Gorm + SQLite（modernc 纯 Go 驱动）保存回测结果。
type GormStore struct {
	db *gorm.DB
}

var _ store.ResultStore = (*GormStore)(nil)

// NewGormStore 打开（必要时创建）结果库并迁移表结构。
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 结果库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &tradeModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) SaveRun(ctx context.Context, report backtest.Report) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(report.RunID) == "" {
		return fmt.Errorf("run_id 必填")
	}
	run, err := newRunModel(report)
	if err != nil {
		return err
	}
	trades := make([]tradeModel, 0, len(report.Trades))
	for i, t := range report.Trades {
		trades = append(trades, newTradeModel(report.RunID, i, t))
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&run).Error; err != nil {
			return fmt.Errorf("写入 backtest_runs 失败: %w", err)
		}
		if err := tx.Where("run_id = ?", report.RunID).Delete(&tradeModel{}).Error; err != nil {
			return err
		}
		if len(trades) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&trades, insertBatchSize).Error; err != nil {
			return fmt.Errorf("写入 backtest_trades 失败: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ListRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = defaultRunLimit
	}
	var models []runModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").Order("id").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.RunRecord, 0, len(models))
	for _, m := range models {
		out = append(out, runModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) GetRun(ctx context.Context, id string) (store.RunRecord, error) {
	if s == nil || s.db == nil {
		return store.RunRecord{}, fmt.Errorf("gorm store 未初始化")
	}
	var m runModel
	err := s.db.WithContext(ctx).Where("id = ?", strings.TrimSpace(id)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.RunRecord{}, fmt.Errorf("%w: %s", store.ErrRunNotFound, id)
	}
	if err != nil {
		return store.RunRecord{}, err
	}
	return runModelToRecord(m), nil
}

func (s *GormStore) ListTrades(ctx context.Context, runID string, limit int) ([]backtest.Trade, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	if limit <= 0 {
		limit = defaultTradeLimit
	}
	var models []tradeModel
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("seq").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]backtest.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToTrade(m))
	}
	return out, nil
}

func newRunModel(r backtest.Report) (runModel, error) {
	cfg, err := json.Marshal(r.Config)
	if err != nil {
		return runModel{}, fmt.Errorf("序列化 config 失败: %w", err)
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return runModel{}, fmt.Errorf("序列化 summary 失败: %w", err)
	}
	m := runModel{
		ID:            r.RunID,
		Status:        r.Status,
		StartedAtUnix: r.StartedAt.UnixMilli(),
		Listings:      len(r.Trades),
		Completed:     r.Summary.Completed,
		Skipped:       r.Summary.Skipped,
		Incomplete:    r.Summary.Incomplete,
		WinRate:       r.Summary.WinRate,
		TotalPnL:      r.Summary.TotalPnL,
		ConfigJSON:    datatypes.JSON(cfg),
		SummaryJSON:   datatypes.JSON(summary),
		Error:         r.Error,
		UpdatedAtUnix: time.Now().UnixMilli(),
	}
	if !r.FinishedAt.IsZero() {
		m.FinishedAtUnix = r.FinishedAt.UnixMilli()
	}
	return m, nil
}

func runModelToRecord(m runModel) store.RunRecord {
	rec := store.RunRecord{
		ID:         m.ID,
		Status:     m.Status,
		StartedAt:  time.UnixMilli(m.StartedAtUnix).UTC(),
		Listings:   m.Listings,
		Completed:  m.Completed,
		Skipped:    m.Skipped,
		Incomplete: m.Incomplete,
		WinRate:    m.WinRate,
		TotalPnL:   m.TotalPnL,
		Config:     json.RawMessage(m.ConfigJSON),
		Summary:    json.RawMessage(m.SummaryJSON),
		Error:      m.Error,
	}
	if m.FinishedAtUnix > 0 {
		ts := time.UnixMilli(m.FinishedAtUnix).UTC()
		rec.FinishedAt = &ts
	}
	return rec
}

func newTradeModel(runID string, seq int, t backtest.Trade) tradeModel {
	return tradeModel{
		RunID:                 runID,
		Seq:                   seq,
		Symbol:                t.Symbol,
		BaseAsset:             t.BaseAsset,
		ListingTime:           t.ListingTime,
		EntryTime:             t.EntryTime,
		EntryPrice:            t.EntryPrice,
		StopLossPrice:         t.StopLossPrice,
		TakeProfitPrice:       t.TakeProfitPrice,
		ExitTime:              t.ExitTime,
		ExitPrice:             t.ExitPrice,
		ExitReason:            string(t.ExitReason),
		PnLPercent:            t.PnLPercent,
		HoldingHours:          t.HoldingHours,
		MaxAdverseExcursion:   t.MaxAdverseExcursionPercent,
		MaxFavorableExcursion: t.MaxFavorableExcursionPercent,
		Candles:               t.Candles,
		Status:                string(t.Status),
		Note:                  t.Note,
	}
}

func tradeModelToTrade(m tradeModel) backtest.Trade {
	return backtest.Trade{
		Symbol:                       m.Symbol,
		BaseAsset:                    m.BaseAsset,
		ListingTime:                  m.ListingTime,
		EntryTime:                    m.EntryTime,
		EntryPrice:                   m.EntryPrice,
		StopLossPrice:                m.StopLossPrice,
		TakeProfitPrice:              m.TakeProfitPrice,
		ExitTime:                     m.ExitTime,
		ExitPrice:                    m.ExitPrice,
		ExitReason:                   backtest.ExitReason(m.ExitReason),
		PnLPercent:                   m.PnLPercent,
		HoldingHours:                 m.HoldingHours,
		MaxAdverseExcursionPercent:   m.MaxAdverseExcursion,
		MaxFavorableExcursionPercent: m.MaxFavorableExcursion,
		Candles:                      m.Candles,
		Status:                       backtest.TradeStatus(m.Status),
		Note:                         m.Note,
	}
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
