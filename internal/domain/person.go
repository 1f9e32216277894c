package domain

// PersonID references a row of the people table.
type PersonID int64

// PersonRecord is one row of the people table.
type PersonRecord struct {
	ID     PersonID
	Name   string
	Email  string
	UserID string
}
