package storage

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// ErrNotFound is returned by repository lookups that match no row.
var ErrNotFound = errors.New("record not found")

// StrToUint 将字符串转换为 uint。
// 如果转换失败，它会返回 0 和错误。
func StrToUint(s string) (uint, error) {
	val, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(val), nil
}

// wrapErr normalizes gorm errors: missing rows become ErrNotFound, everything
// else is annotated with the failing operation.
func wrapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return errors.Wrap(err, op)
}

// isForeignKeyViolation 判断是否违反外键约束；SQLite 未翻译的错误按消息匹配。
func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated) || strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
