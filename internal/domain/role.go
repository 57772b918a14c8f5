package domain

type Role struct {
	ID          string
	ProjectID   string
	Title       string
	Description string
	IsFilled    bool
	TechStack   []string
}

func (r Role) CanAcceptApplications() bool {
	return !r.IsFilled
}

// MarkAsFilled returns the filled copy of r. A role is filled at most once.
func (r Role) MarkAsFilled() (Role, error) {
	if r.IsFilled {
		return r, ErrRoleAlreadyFilled
	}
	r.IsFilled = true
	r.TechStack = append([]string(nil), r.TechStack...)
	return r, nil
}
