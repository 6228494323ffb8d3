package models

import "time"

// Row is a record of a user table.
type Row struct {
	ID        string         `json:"id"`
	TableID   string         `json:"tableId"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Matches reports whether every key in filter is present in the row with an equal value.
func (r *Row) Matches(filter map[string]any) bool {
	for key, want := range filter {
		got, ok := r.Data[key]
		if !ok || !looseEqual(got, want) {
			return false
		}
	}

	return true
}

func looseEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)

	if aNum && bNum {
		return af == bf
	}

	switch a.(type) {
	case string, bool, nil:
		return a == b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}
