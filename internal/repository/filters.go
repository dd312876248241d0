package repository

import (
	"fmt"
	"strings"
	"time"
)

// conditions 拼接 WHERE 子句，参数占位符从 $1 开始依次编号
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) raw(clause string) {
	c.clauses = append(c.clauses, clause)
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

func weekdayArg(d *time.Weekday) any {
	if d == nil {
		return nil
	}
	return int16(*d)
}

func stringsOf[T ~string](values []T) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, string(v))
	}
	return out
}
