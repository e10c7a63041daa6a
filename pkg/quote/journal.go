// 文件: pkg/quote/journal.go
// 报价流水
//
// 定价核心不持久化任何东西；流水只在服务层记录，用于审计和回放。
// 金额列用 decimal(20,8)，避免 float 入库后出现 0.30000000000000004。

package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrQuoteNotFound 流水不存在
var ErrQuoteNotFound = errors.New("quote not found")

// 流水类型
const (
	RecordOption   = "option"
	RecordStrategy = "strategy"
)

// QuoteRecord 一条报价流水
type QuoteRecord struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement:false" json:"id,string"`
	Type       string          `gorm:"column:type;type:varchar(16);index" json:"type"`
	Model      string          `gorm:"column:model;type:varchar(32)" json:"model"`
	Name       string          `gorm:"column:name;type:varchar(64)" json:"name"` // 期权类型或策略名
	Ticker     string          `gorm:"column:ticker;type:varchar(16);index" json:"ticker"`
	Spot       decimal.Decimal `gorm:"column:spot;type:decimal(20,8)" json:"spot"`
	Strike     decimal.Decimal `gorm:"column:strike;type:decimal(20,8)" json:"strike"`
	Maturity   decimal.Decimal `gorm:"column:maturity;type:decimal(20,8)" json:"maturity"`
	Rate       decimal.Decimal `gorm:"column:rate;type:decimal(20,8)" json:"rate"`
	Volatility decimal.Decimal `gorm:"column:volatility;type:decimal(20,8)" json:"volatility"`
	Value      decimal.Decimal `gorm:"column:value;type:decimal(20,8)" json:"value"` // 期权价格或策略净值
	Payload    string          `gorm:"column:payload;type:mediumtext" json:"payload"`
	CreatedAt  int64           `gorm:"column:created_at;index" json:"created_at"` // 毫秒
}

// TableName GORM 表名
func (QuoteRecord) TableName() string {
	return "pricing_quotes"
}

// money 统一保留 8 位小数
func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(8)
}

func newOptionRecord(q *OptionQuote, ticker string) (*QuoteRecord, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return &QuoteRecord{
		ID:         q.ID,
		Type:       RecordOption,
		Model:      string(q.Model),
		Name:       q.Kind,
		Ticker:     ticker,
		Spot:       money(q.Params.Spot),
		Strike:     money(q.Params.Strike),
		Maturity:   money(q.Params.Maturity),
		Rate:       money(q.Params.Rate),
		Volatility: money(q.Params.Volatility),
		Value:      money(q.Price),
		Payload:    string(payload),
		CreatedAt:  q.CreatedAt.UnixMilli(),
	}, nil
}

func newStrategyRecord(q *StrategyQuote, ticker string) (*QuoteRecord, error) {
	payload, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	return &QuoteRecord{
		ID:         q.ID,
		Type:       RecordStrategy,
		Model:      string(ModelBlackScholes),
		Name:       q.Analysis.Strategy.Name,
		Ticker:     ticker,
		Spot:       money(q.Params.Spot),
		Maturity:   money(q.Params.Maturity),
		Rate:       money(q.Params.Rate),
		Volatility: money(q.Params.Volatility),
		Value:      money(q.Analysis.NetValue),
		Payload:    string(payload),
		CreatedAt:  q.CreatedAt.UnixMilli(),
	}, nil
}

// Journal 报价流水存储
type Journal interface {
	Record(ctx context.Context, rec *QuoteRecord) error
	Get(ctx context.Context, id int64) (*QuoteRecord, error)
	Recent(ctx context.Context, limit int) ([]*QuoteRecord, error)
}

// =============================================================================
// MySQL 实现
// =============================================================================

var _ Journal = (*MySQLJournal)(nil)

// MySQLJournal GORM + MySQL
type MySQLJournal struct {
	db *gorm.DB
}

func NewMySQLJournal(db *gorm.DB) *MySQLJournal {
	return &MySQLJournal{db: db}
}

// Migrate 建表
func (j *MySQLJournal) Migrate(ctx context.Context) error {
	return j.db.WithContext(ctx).AutoMigrate(&QuoteRecord{})
}

func (j *MySQLJournal) Record(ctx context.Context, rec *QuoteRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("journal quote %d: %w", rec.ID, err)
	}
	return nil
}

func (j *MySQLJournal) Get(ctx context.Context, id int64) (*QuoteRecord, error) {
	var rec QuoteRecord
	err := j.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuoteNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Recent 最近的流水，按时间倒序
func (j *MySQLJournal) Recent(ctx context.Context, limit int) ([]*QuoteRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var recs []*QuoteRecord
	err := j.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
