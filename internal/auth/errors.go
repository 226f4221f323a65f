package auth

import "errors"

var (
	// ErrInvalidPassword is returned when the provided password is incorrect during authentication.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidTOTPCode is returned when the user has a second factor configured
	// and the provided one-time code does not validate.
	ErrInvalidTOTPCode = errors.New("invalid one-time code")

	// ErrUserAccountBlocked is returned when attempting to authenticate a blocked user account.
	ErrUserAccountBlocked = errors.New("user account is blocked")

	// ErrUserNotFound is returned when a user cannot be found in the database.
	ErrUserNotFound = errors.New("user not found")

	// ErrRoleNotFound is returned when a role cannot be found by name or ID.
	ErrRoleNotFound = errors.New("role not found")

	// ErrPermissionNotFound is returned when a permission cannot be found by name or ID.
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrRoleNameExists is returned when creating a role whose name is already taken.
	ErrRoleNameExists = errors.New("role with this name already exists")

	// ErrPermissionNameExists is returned when creating a permission whose name is already taken.
	ErrPermissionNameExists = errors.New("permission with this name already exists")

	// ErrRoleInUse is returned when deleting a role that still has users attached.
	// The role must be removed from every user first.
	ErrRoleInUse = errors.New("role is still assigned to one or more users")

	// ErrPermissionInUse is returned when deleting a permission that is still
	// attached to a role or granted directly to a user.
	ErrPermissionInUse = errors.New("permission is still assigned to one or more roles or users")
)
