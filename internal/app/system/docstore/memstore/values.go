package memstore

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dalemusser/classhub/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var errEmptyID = errors.New("document id is empty")

// normalize round-trips a filter value through BSON so it has the same Go
// type as the stored field it is compared with (int -> int32, time.Time ->
// primitive.DateTime, ...).
func normalize(v any) any {
	b, err := bson.Marshal(bson.M{"v": v})
	if err != nil {
		return v
	}
	var m bson.M
	if err := bson.Unmarshal(b, &m); err != nil {
		return v
	}
	return m["v"]
}

func matches(doc bson.M, filters []docstore.Filter) bool {
	for _, f := range filters {
		if !equal(doc[f.Field], f.Value) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	if af, ok := number(a); ok {
		if bf, ok := number(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// compare orders BSON values: missing < numbers < strings < booleans < dates.
func compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case string:
		return strings.Compare(av, b.(string))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case primitive.DateTime:
		bv := b.(primitive.DateTime)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	}
	af, _ := number(a)
	bf, _ := number(b)
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case int32, int64, float64:
		return 1
	case string:
		return 2
	case bool:
		return 3
	case primitive.DateTime:
		return 4
	default:
		return 5
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
