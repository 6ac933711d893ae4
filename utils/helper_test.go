package utils

import (
	"errors"
	"testing"
	"time"
)

func TestValidateDateRange(t *testing.T) {
	start, end, err := ValidateDateRange("2026-03-01", "2026-03-05")
	if err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if start.Format("2006-01-02") != "2026-03-01" {
		t.Errorf("start = %s, want 2026-03-01", start.Format("2006-01-02"))
	}
	// End is inclusive end-of-day.
	if end.Hour() != 23 || end.Minute() != 59 || end.Second() != 59 {
		t.Errorf("end not end-of-day: %s", end)
	}
	if end.Day() != 5 {
		t.Errorf("end day = %d, want 5", end.Day())
	}
}

func TestValidateDateRangeSameDay(t *testing.T) {
	start, end, err := ValidateDateRange("2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("same-day range rejected: %v", err)
	}
	if !end.After(start) {
		t.Errorf("end %s should be after start %s", end, start)
	}
}

func TestValidateDateRangeRejectsInverted(t *testing.T) {
	_, _, err := ValidateDateRange("2026-03-05", "2026-03-01")
	if !errors.Is(err, ErrorValidation) {
		t.Fatalf("err = %v, want ErrorValidation", err)
	}
}

func TestValidateDateRangeRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"03/01/2026", "2026-3-1", "", "yesterday"} {
		_, _, err := ValidateDateRange(bad, "2026-03-01")
		if !errors.Is(err, ErrorValidation) {
			t.Errorf("start %q: err = %v, want ErrorValidation", bad, err)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("UniqueSlice = %v", got)
	}
}

func TestParseDecimal(t *testing.T) {
	d, err := ParseDecimal(" 12.345 ")
	if err != nil {
		t.Fatalf("ParseDecimal: %v", err)
	}
	if d.String() != "12.345" {
		t.Errorf("got %s", d.String())
	}
	if _, err := ParseDecimal(""); err == nil {
		t.Error("empty string should fail")
	}
}

func TestBusinessTimezoneOffset(t *testing.T) {
	loc := BusinessTimezone()
	_, offset := time.Date(2026, 3, 1, 12, 0, 0, 0, loc).Zone()
	if offset != 8*3600 {
		t.Errorf("offset = %d, want +8h", offset)
	}
}
