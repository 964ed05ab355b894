package event

// Schedule holds the workday boundaries used to decide which portion of a
// day an absence covers. All values are minutes from midnight (MinDuration
// is a plain minute count). The schedule is passed in explicitly; the
// classifier never reads global state.
type Schedule struct {
	WorkStart   int
	WorkEnd     int
	LunchStart  int
	LunchEnd    int
	MinDuration int
}

// Classify decides what an absence from start to end (minutes from midnight,
// same calendar day) amounts to. All comparisons are on minute integers with
// inclusive boundaries, so endpoints that land exactly on a schedule
// boundary classify deterministically. StatusNone is not an error; callers
// suppress event creation for it.
func (s Schedule) Classify(start, end int) Status {
	am := s.coversMorning(start, end)
	pm := s.coversAfternoon(start, end)

	switch {
	case am && pm:
		return StatusFullDay
	case am:
		return StatusMorning
	case pm:
		return StatusAfternoon
	default:
		return StatusNone
	}
}

// coversMorning reports whether the interval, clipped to
// [WorkStart, LunchStart], lasts at least MinDuration.
func (s Schedule) coversMorning(start, end int) bool {
	if start > s.LunchStart || end < s.WorkStart {
		return false
	}
	if start < s.WorkStart {
		start = s.WorkStart
	}
	if end > s.LunchStart {
		end = s.LunchStart
	}
	return end-start >= s.MinDuration
}

// coversAfternoon is the symmetric test against [LunchEnd, WorkEnd].
func (s Schedule) coversAfternoon(start, end int) bool {
	if start > s.WorkEnd || end < s.LunchEnd {
		return false
	}
	if start < s.LunchEnd {
		start = s.LunchEnd
	}
	if end > s.WorkEnd {
		end = s.WorkEnd
	}
	return end-start >= s.MinDuration
}
