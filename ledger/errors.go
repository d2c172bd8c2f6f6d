package ledger

import "fmt"

type (
	UserNotFound struct {
		Username string
	}

	DuplicateUser struct {
		Username string
	}

	SchemaMismatch struct {
		Table  string
		Column string
		Reason string
	}

	ReadOnly struct{}
)

func (u UserNotFound) Error() string {
	return fmt.Sprintf("user %q not found", u.Username)
}

func (d DuplicateUser) Error() string {
	return fmt.Sprintf("user %q already exists", d.Username)
}

func (s SchemaMismatch) Error() string {
	if s.Column == "" {
		return fmt.Sprintf("table %v %v", s.Table, s.Reason)
	}
	return fmt.Sprintf("column %v.%v %v", s.Table, s.Column, s.Reason)
}

func (ReadOnly) Error() string {
	return "ledger was opened in read-only mode"
}
