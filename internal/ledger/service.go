package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidSourceType    = errors.New("invalid_source_type")
	ErrInvalidSourceID      = errors.New("invalid_source_id")
	ErrInvalidCurrency      = errors.New("invalid_currency")
	ErrInvalidOccurredAt    = errors.New("invalid_occurred_at")
	ErrInvalidEntryLines    = errors.New("invalid_entry_lines")
	ErrInvalidLineAmount    = errors.New("invalid_line_amount")
	ErrInvalidLineDirection = errors.New("invalid_line_direction")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrUnbalancedEntry      = errors.New("unbalanced_entry")
)

// Service writes balanced ledger entries.
type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

func NewService(p Params) *Service {
	return &Service{
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

// CreateEntryTx validates and inserts a balanced entry inside the
// caller's transaction, so postings commit or roll back with the
// billing writes that caused them.
func (s *Service) CreateEntryTx(
	ctx context.Context,
	tx *gorm.DB,
	sourceType string,
	sourceID snowflake.ID,
	currency string,
	occurredAt time.Time,
	lines []EntryLine,
) error {
	sourceType = strings.TrimSpace(sourceType)
	if sourceType == "" {
		return ErrInvalidSourceType
	}
	if sourceID == 0 {
		return ErrInvalidSourceID
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return ErrInvalidCurrency
	}
	if occurredAt.IsZero() {
		return ErrInvalidOccurredAt
	}
	if err := ValidateBalanced(lines); err != nil {
		return err
	}

	now := time.Now().UTC()
	entry := Entry{
		ID:         s.genID.Generate(),
		SourceType: sourceType,
		SourceID:   sourceID,
		Currency:   currency,
		OccurredAt: occurredAt.UTC(),
		CreatedAt:  now,
	}
	if err := tx.WithContext(ctx).Create(&entry).Error; err != nil {
		return err
	}

	for i := range lines {
		lines[i].ID = s.genID.Generate()
		lines[i].LedgerEntryID = entry.ID
		lines[i].CreatedAt = now
	}
	return tx.WithContext(ctx).Create(&lines).Error
}

// EnsureAccountTx finds or creates a chart-of-accounts row by code.
func (s *Service) EnsureAccountTx(ctx context.Context, tx *gorm.DB, code, name string) (snowflake.ID, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, ErrInvalidAccount
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidAccount
	}

	var account Account
	err := tx.WithContext(ctx).Where("code = ?", code).First(&account).Error
	if err == nil {
		return account.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}

	account = Account{
		ID:        s.genID.Generate(),
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(&account).Error; err != nil {
		return 0, err
	}
	return account.ID, nil
}
