package core

// Record accessors used by the scoped store. Owner stamping returns a copy so
// callers never see their value mutated.

func (h Habit) RecordID() string    { return h.ID }
func (h Habit) RecordOwner() string { return h.UserID }
func (h Habit) WithOwner(userID string) Habit {
	h.UserID = userID
	return h
}

func (l HabitLog) RecordID() string    { return l.ID }
func (l HabitLog) RecordOwner() string { return l.UserID }
func (l HabitLog) WithOwner(userID string) HabitLog {
	l.UserID = userID
	return l
}

// LogKey identifies the single log allowed per habit, day and owner.
func LogKey(l HabitLog) string {
	return l.HabitID + "|" + l.Date.String() + "|" + l.UserID
}

func (t Transaction) RecordID() string    { return t.ID }
func (t Transaction) RecordOwner() string { return t.UserID }
func (t Transaction) WithOwner(userID string) Transaction {
	t.UserID = userID
	return t
}
