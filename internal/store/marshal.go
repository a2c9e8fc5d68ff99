package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/eventpush/internal/ir"
)

// timeLayout is fixed-width so TEXT comparison matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalSnapshot converts a snapshot to canonical JSON TEXT for storage.
func marshalSnapshot(snapshot ir.Object) (string, error) {
	if snapshot == nil {
		snapshot = ir.Object{}
	}
	data, err := ir.MarshalCanonical(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(data), nil
}

// unmarshalSnapshot parses canonical JSON TEXT to an Object.
// ir.Object.UnmarshalJSON keeps integers above 2^53 exact.
func unmarshalSnapshot(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return obj, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
