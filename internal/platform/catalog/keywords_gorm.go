package catalog

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// KeywordIndex maintains an inverted index table of (seq, token, owner id)
// rows. Seq is an autoincrement column, so ordering by it reproduces
// insertion order.
type KeywordIndex struct {
	Table    string
	OwnerCol string
}

// Rewrite replaces the tokens of owner. Call it inside the transaction that
// writes the owner row.
func (k KeywordIndex) Rewrite(tx *gorm.DB, owner uuid.UUID, tokens []string) error {
	if err := k.Remove(tx, owner); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(tokens))
	for _, tok := range tokens {
		rows = append(rows, map[string]any{"token": tok, k.OwnerCol: owner})
	}
	if err := tx.Table(k.Table).Create(rows).Error; err != nil {
		return fmt.Errorf("write %s: %w", k.Table, err)
	}
	return nil
}

// Remove deletes every token of owner.
func (k KeywordIndex) Remove(tx *gorm.DB, owner uuid.UUID) error {
	if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = ?", k.Table, k.OwnerCol), owner).Error; err != nil {
		return fmt.Errorf("clear %s: %w", k.Table, err)
	}
	return nil
}

// Match returns owner ids having any of tokens, in first-insertion order.
func (k KeywordIndex) Match(tx *gorm.DB, tokens []string, limit int) ([]uuid.UUID, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	err := tx.Table(k.Table).
		Select(k.OwnerCol).
		Where("token IN ?", tokens).
		Group(k.OwnerCol).
		Order("MIN(seq)").
		Limit(limit).
		Pluck(k.OwnerCol, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("match %s: %w", k.Table, err)
	}
	return ids, nil
}

// Subquery returns a sub-select of owner ids having any of tokens, for use in
// "id IN (?)" filters.
func (k KeywordIndex) Subquery(tx *gorm.DB, tokens []string) *gorm.DB {
	return tx.Table(k.Table).Select(k.OwnerCol).Where("token IN ?", tokens)
}

// OrderByIDs reorders rows to follow ids, dropping rows not listed.
func OrderByIDs[T Entry](rows []T, ids []uuid.UUID) []T {
	byID := make(map[uuid.UUID]T, len(rows))
	for _, r := range rows {
		byID[r.EntryID()] = r
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
