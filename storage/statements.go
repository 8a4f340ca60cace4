package storage

import (
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	appconfig "priceflow/config"
	"priceflow/models"
)

// maxParams is the PostgreSQL limit of bind parameters per statement.
const maxParams = 65535

// tableLayout is the resolved column layout of the price table.
type tableLayout struct {
	table     string
	symbol    string
	ts        string
	columns   []string // insert order, key columns first
	mutable   []string // columns rewritten on conflict
	adjusted  bool
	updatedAt string
}

func newTableLayout(cfg appconfig.TableConfig) tableLayout {
	l := tableLayout{
		table:  quoteQualified(cfg.Name),
		symbol: quote("symbol"),
		ts:     quote(cfg.TimeColumn),
	}
	l.mutable = []string{quote("open"), quote("high"), quote("low"), quote("close")}
	if cfg.AdjustedClose {
		l.adjusted = true
		l.mutable = append(l.mutable, quote("adjusted_close"))
	}
	l.mutable = append(l.mutable, quote("volume"))
	l.columns = append([]string{l.symbol, l.ts}, l.mutable...)
	if cfg.UpdatedAtColumn != "" {
		l.updatedAt = quote(cfg.UpdatedAtColumn)
	}
	return l
}

func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteQualified quotes a possibly schema-qualified name such as public.prices.
func quoteQualified(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// maxRowsPerStatement bounds a chunk so it stays under the parameter limit.
func (l tableLayout) maxRowsPerStatement() int {
	return maxParams / len(l.columns)
}

// upsertSQL builds a multi-row insert of n rows that overwrites every mutable
// column on a (symbol, time) conflict.
func (l tableLayout) upsertSQL(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(l.table)
	b.WriteString(" (")
	b.WriteString(strings.Join(l.columns, ", "))
	b.WriteString(") VALUES ")

	width := len(l.columns)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < width; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(i*width + j + 1))
		}
		b.WriteByte(')')
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(l.symbol)
	b.WriteString(", ")
	b.WriteString(l.ts)
	b.WriteString(") DO UPDATE SET ")
	sets := make([]string, 0, len(l.mutable)+1)
	for _, c := range l.mutable {
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	if l.updatedAt != "" {
		sets = append(sets, l.updatedAt+" = now()")
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

// upsertArgs flattens rows in column order.
func (l tableLayout) upsertArgs(rows []models.PricePoint) []any {
	args := make([]any, 0, len(rows)*len(l.columns))
	for _, r := range rows {
		args = append(args, r.Symbol, r.Timestamp.UTC(), r.Open, r.High, r.Low, r.Close)
		if l.adjusted {
			args = append(args, r.AdjustedClose)
		}
		args = append(args, r.Volume)
	}
	return args
}

func (l tableLayout) countSinceSQL() string {
	return "SELECT " + l.symbol + ", COUNT(*) FROM " + l.table +
		" WHERE " + l.ts + " >= $1 AND " + l.symbol + " = ANY($2) GROUP BY " + l.symbol
}

func (l tableLayout) deleteBeforeSQL() string {
	return "DELETE FROM " + l.table + " WHERE " + l.ts + " < $1"
}

// dedupe collapses rows sharing a timestamp, keeping the last one at the
// position of the first. One ON CONFLICT statement may not touch a row twice.
func dedupe(rows []models.PricePoint) []models.PricePoint {
	index := make(map[string]int, len(rows))
	out := make([]models.PricePoint, 0, len(rows))
	for _, r := range rows {
		key := r.Key()
		if i, ok := index[key]; ok {
			out[i] = r
			continue
		}
		index[key] = len(out)
		out = append(out, r)
	}
	return out
}
