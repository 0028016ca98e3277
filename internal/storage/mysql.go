package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	logx "sigrelay/pkg/logx"
)

// signalModel mirrors the sqlite schema so both backends hold the same rows.
type signalModel struct {
	ID         int64   `gorm:"primaryKey;autoIncrement"`
	ReceivedAt string  `gorm:"type:varchar(40);not null;index:idx_signals_received_at"`
	Ticker     *string `gorm:"type:text"`
	Action     *string `gorm:"type:text"`
	Price      *string `gorm:"type:text"`
	SL         *string `gorm:"column:sl;type:text"`
	TP         *string `gorm:"column:tp;type:text"`
	Timeframe  *string `gorm:"type:text"`
	RawPayload string  `gorm:"type:mediumtext;not null"`
}

func (signalModel) TableName() string { return "signals" }

type mysqlStore struct {
	db  *gorm.DB
	log logx.Logger
}

func openMySQL(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for mysql driver")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("mysql open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&signalModel{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("mysql migrate: %w", err)
	}
	log.Info("storage opened")
	return &mysqlStore{db: db, log: log}, nil
}

func toModel(r SignalRow) signalModel {
	return signalModel{
		ReceivedAt: formatReceivedAt(r.ReceivedAt),
		Ticker:     optStr(r.Ticker),
		Action:     optStr(r.Action),
		Price:      optStr(r.Price),
		SL:         optStr(r.StopLoss),
		TP:         optStr(r.TakeProfit),
		Timeframe:  optStr(r.Timeframe),
		RawPayload: r.RawPayload,
	}
}

func (s *mysqlStore) AppendSignal(ctx context.Context, r SignalRow) (int64, error) {
	m := toModel(r)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return 0, err
	}
	return m.ID, nil
}

func (s *mysqlStore) Recent(ctx context.Context, limit int) ([]SignalRow, error) {
	var ms []signalModel
	err := s.db.WithContext(ctx).Order("id DESC").Limit(clampLimit(limit)).Find(&ms).Error
	if err != nil {
		return nil, err
	}
	out := make([]SignalRow, 0, len(ms))
	for _, m := range ms {
		out = append(out, SignalRow{
			ID:         m.ID,
			ReceivedAt: parseReceivedAt(m.ReceivedAt),
			Ticker:     deref(m.Ticker),
			Action:     deref(m.Action),
			Price:      deref(m.Price),
			StopLoss:   deref(m.SL),
			TakeProfit: deref(m.TP),
			Timeframe:  deref(m.Timeframe),
			RawPayload: m.RawPayload,
		})
	}
	return out, nil
}

func (s *mysqlStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func optStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
