package domain

import "slices"

// Group belongs to exactly one course. Members are user IDs in join order.
type Group struct {
	ID       string   `json:"group_id" bson:"_id"`
	CourseID string   `json:"course_id" bson:"course_id"`
	Name     string   `json:"name" bson:"name"`
	Members  []string `json:"members" bson:"members"`
}

// HasMember reports whether userID already belongs to g.
func (g *Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// AddMember appends userID unless already present. It reports whether g changed.
func (g *Group) AddMember(userID string) bool {
	if g.HasMember(userID) {
		return false
	}
	g.Members = append(g.Members, userID)
	return true
}

func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	c := *g
	c.Members = slices.Clone(g.Members)
	return &c
}
