package domain

type KeyFeature struct {
	ID      string `json:"id"`
	Feature string `json:"feature"`
}

type ProjectGoal struct {
	ID   string `json:"id"`
	Goal string `json:"goal"`
}

type Project struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	KeyFeatures []KeyFeature
	Goals       []ProjectGoal
}

func (p Project) HasOwnerID(userID string) bool {
	return userID != "" && p.OwnerID == userID
}

func (p Project) HasKeyFeature(id string) bool {
	_, ok := p.KeyFeature(id)
	return ok
}

func (p Project) KeyFeature(id string) (KeyFeature, bool) {
	for _, f := range p.KeyFeatures {
		if f.ID == id {
			return f, true
		}
	}
	return KeyFeature{}, false
}

func (p Project) HasProjectGoal(id string) bool {
	_, ok := p.ProjectGoal(id)
	return ok
}

func (p Project) ProjectGoal(id string) (ProjectGoal, bool) {
	for _, g := range p.Goals {
		if g.ID == id {
			return g, true
		}
	}
	return ProjectGoal{}, false
}

// Profile is the public identity of a user as shown next to an application.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}
