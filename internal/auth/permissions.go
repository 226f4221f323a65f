package auth

// Permission constants define the available permissions in the system.
// Names follow the resource.action convention and are seeded at startup.
const (
	// PermUserView allows viewing the user list and user details.
	PermUserView = "user.view"
	// PermUserCreate allows creating new user accounts.
	PermUserCreate = "user.create"
	// PermUserEdit allows editing existing user accounts.
	PermUserEdit = "user.edit"
	// PermUserDelete allows deleting user accounts.
	PermUserDelete = "user.delete"
	// PermUserBlock allows blocking and unblocking user accounts.
	PermUserBlock = "user.block"
	// PermUserAssignRole allows assigning roles to and removing roles from users.
	PermUserAssignRole = "user.assign_role"
	// PermUserAssignPermission allows granting permissions directly to users.
	PermUserAssignPermission = "user.assign_permission"

	// PermRoleManage allows managing roles and their permission sets.
	PermRoleManage = "role.manage"
	// PermPermissionManage allows managing the permission catalog itself.
	PermPermissionManage = "permission.manage"

	// PermSettingsManage allows editing application-wide settings.
	PermSettingsManage = "settings.manage"
)

// AllPermissions lists every permission the application defines, in seed order.
var AllPermissions = []string{
	PermUserView,
	PermUserCreate,
	PermUserEdit,
	PermUserDelete,
	PermUserBlock,
	PermUserAssignRole,
	PermUserAssignPermission,
	PermRoleManage,
	PermPermissionManage,
	PermSettingsManage,
}
