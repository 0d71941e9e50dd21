// errors/access_errors.go
package errors

import "errors"

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserInactive     = errors.New("user is not active")
	ErrRoleNotFound     = errors.New("role not found")
	ErrInvalidRoleData  = errors.New("invalid role data")
	ErrRoleOrgMismatch  = errors.New("parent role belongs to a different organization")
	ErrCircularRole     = errors.New("circular role hierarchy detected")
	ErrPermissionDenied = errors.New("permission denied")
)

var (
	ErrDepartmentAccessNotFound = errors.New("department access not found")
	ErrLocationAccessNotFound   = errors.New("location access not found")
	ErrTimeRestrictionNotFound  = errors.New("time restriction not found")
	ErrCrossDepartmentDenied    = errors.New("no cross-department rule permits this access")
	ErrRequestNotFound          = errors.New("access request not found")
	ErrRequestAlreadyResolved   = errors.New("access request already resolved")
	ErrInvalidGrant             = errors.New("invalid access grant data")
)

var (
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrDatabaseOperation = errors.New("database operation failed")
	ErrInvalidPolicyData = errors.New("invalid policy data")
)
