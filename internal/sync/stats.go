package sync

// Stats counts what a sync pass did. Push and pull phases fill different
// fields; Add combines them.
type Stats struct {
	// Push phase.
	Pushed  int
	Failed  int
	Skipped int

	// Pull phase.
	Inserted int
	Merged   int
	Removed  int

	// Conflicts counts pending updates dropped because the remote record
	// was deleted.
	Conflicts int
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Pushed:    s.Pushed + o.Pushed,
		Failed:    s.Failed + o.Failed,
		Skipped:   s.Skipped + o.Skipped,
		Inserted:  s.Inserted + o.Inserted,
		Merged:    s.Merged + o.Merged,
		Removed:   s.Removed + o.Removed,
		Conflicts: s.Conflicts + o.Conflicts,
	}
}

// Empty reports whether the pass changed nothing and saw no failures.
func (s Stats) Empty() bool {
	return s == Stats{}
}

func (s *Stats) record(o outcome) {
	switch o {
	case outcomePushed:
		s.Pushed++
	case outcomeSkipped:
		s.Skipped++
	case outcomeFailed:
		s.Failed++
	case outcomeConflict:
		s.Conflicts++
		s.Removed++
	case outcomeInserted:
		s.Inserted++
	case outcomeMerged:
		s.Merged++
	}
}
