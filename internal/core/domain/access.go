package domain

import "errors"

// Role is the relation between a caller and a request.
type Role string

const (
	// RoleRequester is the user who sent the request.
	RoleRequester Role = "requester"
	// RoleGroupMember belongs to the group the request targets.
	RoleGroupMember Role = "group_member"
)

var ErrForbidden = errors.New("forbidden")
