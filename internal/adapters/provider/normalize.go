package provider

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	perr "searchbeat/internal/platform/errors"
	"searchbeat/internal/services/ingest/domain"
)

// Fallback key sets accepted per field, tried in order, case-insensitive
var (
	dateKeys  = []string{"Date", "date", "DateKey", "dateKey"}
	queryKeys = []string{"Query", "query"}
	pageKeys  = []string{"Page", "page", "Url", "PageUrl"}
	clickKeys = []string{"Clicks", "clicks"}
	imprKeys  = []string{"Impressions", "impressions"}
	ctrKeys   = []string{"CTR", "ctr"}
	posKeys   = []string{"Position", "position"}
)

var legacyDateRe = regexp.MustCompile(`^/Date\((-?\d+)([+-]\d{4})?\)/$`)

// ParseDate converts an upstream date value to a UTC calendar date.
// Accepted encodings: ISO "YYYY-MM-DD", the legacy "/Date(<unix-ms>)/"
// wrapper, and a native timestamp (time.Time or RFC3339 string)
func ParseDate(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return dayOf(x), nil
	case string:
		s := strings.TrimSpace(x)
		if m := legacyDateRe.FindStringSubmatch(s); m != nil {
			ms, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return time.Time{}, perr.InvalidArgf("bad legacy date %q", s)
			}
			return dayOf(time.UnixMilli(ms).UTC()), nil
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return dayOf(t), nil
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return dayOf(t.UTC()), nil
		}
		return time.Time{}, perr.InvalidArgf("unrecognized date %q", s)
	case float64:
		// json numbers for unix-ms timestamps
		return dayOf(time.UnixMilli(int64(x)).UTC()), nil
	}
	return time.Time{}, perr.InvalidArgf("unrecognized date type %T", v)
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func lookup(row map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok {
			return v, true
		}
	}
	// case-insensitive sweep as a last resort
	for _, k := range keys {
		for rk, v := range row {
			if strings.EqualFold(rk, k) {
				return v, true
			}
		}
	}
	return nil, false
}

// asCount coerces a measure to a non-negative integer (missing or junk is 0)
func asCount(v any) int64 {
	var n int64
	switch x := v.(type) {
	case float64:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	case string:
		n, _ = strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	}
	if n < 0 {
		return 0
	}
	return n
}

// asReal coerces a measure to a non-negative real (missing or junk is 0)
func asReal(v any) float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case int64:
		f = float64(x)
	case int:
		f = float64(x)
	case string:
		f, _ = strconv.ParseFloat(strings.TrimSpace(x), 64)
	}
	if f < 0 {
		return 0
	}
	return f
}

func asText(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// NormalizeRows maps raw upstream rows to FactRows. Rows with an
// undecodable date are rejected; query/page rows with empty key text are
// dropped. Skipped counts both
func NormalizeRows(site string, st domain.SearchType, dim domain.Dimension, raw []map[string]any) (rows []domain.FactRow, skipped int) {
	for _, rr := range raw {
		dv, ok := lookup(rr, dateKeys)
		if !ok {
			skipped++
			continue
		}
		day, err := ParseDate(dv)
		if err != nil {
			skipped++
			continue
		}

		row := domain.FactRow{Site: site, Date: day, Type: st}
		switch dim {
		case domain.DimQuery:
			v, _ := lookup(rr, queryKeys)
			row.Query = asText(v)
			if row.Query == "" {
				skipped++
				continue
			}
		case domain.DimPage:
			v, _ := lookup(rr, pageKeys)
			row.Page = asText(v)
			if row.Page == "" {
				skipped++
				continue
			}
		}

		if v, ok := lookup(rr, clickKeys); ok {
			row.Clicks = asCount(v)
		}
		if v, ok := lookup(rr, imprKeys); ok {
			row.Impressions = asCount(v)
		}
		if v, ok := lookup(rr, ctrKeys); ok {
			// ctr is a ratio; some upstreams report percent points
			if row.CTR = asReal(v); row.CTR > 1 {
				row.CTR = 1
			}
		}
		if v, ok := lookup(rr, posKeys); ok {
			row.Position = asReal(v)
		}
		rows = append(rows, row)
	}
	return rows, skipped
}
