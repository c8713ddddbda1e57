package pointers

import "time"

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

func String(v string) *string     { return &v }
func Int(v int) *int              { return &v }
func Time(v time.Time) *time.Time { return &v }

// Deref returns *p or the zero value.
func Deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// NonEmpty returns nil for "" so optional text columns stay NULL.
func NonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
