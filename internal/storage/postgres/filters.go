package postgres

import (
	"strconv"
	"strings"
)

// conditions собирает WHERE из условий с плейсхолдером "?", нумеруя аргументы $1..$n.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, strings.ReplaceAll(expr, "?", "$"+strconv.Itoa(len(c.args))))
}

func (c *conditions) where() string {
	if len(c.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.clauses, " AND ")
}

// limit добавляет LIMIT как очередной аргумент; n <= 0 снимает ограничение.
func (c *conditions) limit(n int) string {
	if n <= 0 {
		return ""
	}
	c.args = append(c.args, n)
	return " LIMIT $" + strconv.Itoa(len(c.args))
}
