package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	InvoicePrefix  = "INV"
	ProposalPrefix = "PRO"
)

// FormatNumber renders PREFIX-YYYYMM-NNNN. Counters above 9999 keep growing in width.
func FormatNumber(prefix string, at time.Time, seq int) string {
	return fmt.Sprintf("%s-%04d%02d-%04d", prefix, at.Year(), int(at.Month()), seq)
}

// ParseSequence extracts the trailing counter of a formatted number.
func ParseSequence(number string) (int, error) {
	i := strings.LastIndex(number, "-")
	if i < 0 || i == len(number)-1 {
		return 0, fmt.Errorf("malformed document number %q", number)
	}
	return strconv.Atoi(number[i+1:])
}

// NextNumber returns the next free number for prefix in the month of at. The counter is
// scoped to the month: the first document of a month is NNNN=0001. model is a pointer to
// the document table's model and column the number column.
//
// Two creators can compute the same number; the unique index on column rejects the loser,
// which retries (see CreateWithNumber).
func NextNumber(tx *gorm.DB, model any, column, prefix string, at time.Time) (string, error) {
	monthPrefix := fmt.Sprintf("%s-%04d%02d-", prefix, at.Year(), int(at.Month()))
	var last string
	err := tx.Model(model).
		Select(column).
		Where(column+" LIKE ?", monthPrefix+"%").
		Order("LENGTH(" + column + ") DESC").
		Order(column + " DESC").
		Limit(1).
		Scan(&last).Error
	if err != nil {
		return "", err
	}
	seq := 0
	if last != "" {
		if seq, err = ParseSequence(last); err != nil {
			return "", err
		}
	}
	return FormatNumber(prefix, at, seq+1), nil
}

const numberRetries = 3

// CreateWithNumber assigns a number via assign and inserts the record, retrying with a fresh
// number when another creator took the same one first.
func CreateWithNumber(db *gorm.DB, assign func(tx *gorm.DB) error, create func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < numberRetries; attempt++ {
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := assign(tx); err != nil {
				return err
			}
			return create(tx)
		})
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
	}
	return err
}
