package repository

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
	dialectMySQL    = "mysql"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// dbDialectName 数据库方言名称，未知时按 sqlite 处理
func dbDialectName(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return dialectSQLite
	}
	switch name := strings.ToLower(strings.TrimSpace(db.Dialector.Name())); name {
	case "":
		return dialectSQLite
	case "postgresql":
		return dialectPostgres
	default:
		return name
	}
}

// likeAny 构建多列模糊匹配条件，term 中的通配符按字面量匹配
func likeAny(db *gorm.DB, term string, columns ...string) (string, []interface{}) {
	return likeAnyByDialect(dbDialectName(db), term, columns...)
}

func likeAnyByDialect(dialect, term string, columns ...string) (string, []interface{}) {
	// postgres 与 mysql 默认以反斜杠转义，sqlite 需显式声明
	format := `%s LIKE ? ESCAPE '\'`
	switch dialect {
	case dialectPostgres:
		format = "%s ILIKE ?"
	case dialectMySQL:
		format = "%s LIKE ?"
	}
	pattern := "%" + likeEscaper.Replace(term) + "%"
	parts := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, column := range columns {
		column = strings.TrimSpace(column)
		if column == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(format, column))
		args = append(args, pattern)
	}
	return strings.Join(parts, " OR "), args
}

// dateBucketExpr 按天分组的表达式
func dateBucketExpr(db *gorm.DB, column string) string {
	switch dbDialectName(db) {
	case dialectPostgres:
		return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", column)
	case dialectMySQL:
		return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", column)
	default:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column)
	}
}
