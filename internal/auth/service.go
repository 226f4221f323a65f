package auth

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/go-backoffice/backoffice/internal/db/models"
)

// Outcome is the result of a relationship mutation. Mutations that find the
// desired state already in place report a no-op instead of an error.
type Outcome int

const (
	// OutcomeApplied means the relationship was created or removed.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyPresent means an assign/grant found the relationship in place.
	OutcomeAlreadyPresent
	// OutcomeAlreadyAbsent means a remove/revoke found no relationship to remove.
	OutcomeAlreadyAbsent
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyPresent:
		return "already present"
	case OutcomeAlreadyAbsent:
		return "already absent"
	default:
		return "unknown"
	}
}

// Service provides authentication and authorization functionality.
type Service struct {
	db *gorm.DB
}

// NewService creates a new auth service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// roleByName resolves a role by its unique name.
func roleByName(tx *gorm.DB, name string) (*models.Role, error) {
	var role models.Role

	err := tx.Where("name = ?", name).First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRoleNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query role: %w", err)
	}

	return &role, nil
}

// permissionByName resolves a permission by its unique name.
func permissionByName(tx *gorm.DB, name string) (*models.Permission, error) {
	var permission models.Permission

	err := tx.Where("name = ?", name).First(&permission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPermissionNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query permission: %w", err)
	}

	return &permission, nil
}

// HasRole checks if a user holds the role with the given name.
func (s *Service) HasRole(userID uint64, roleName string) (bool, error) {
	var count int64

	err := s.db.Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ? AND roles.name = ?", userID, roleName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}

	return count > 0, nil
}

// AssignRole assigns the named role to a user. Returns OutcomeAlreadyPresent
// without touching the database when the user already holds the role.
func (s *Service) AssignRole(userID uint64, roleName string) (Outcome, error) {
	role, err := roleByName(s.db, roleName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.HasRole(userID, roleName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if has {
		return OutcomeAlreadyPresent, nil
	}

	if err := s.db.Create(&models.UserRole{UserID: userID, RoleID: role.ID}).Error; err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to assign role: %w", err)
	}

	return OutcomeApplied, nil
}

// RemoveRole removes the named role from a user. Returns OutcomeAlreadyAbsent
// when the user does not hold the role.
func (s *Service) RemoveRole(userID uint64, roleName string) (Outcome, error) {
	role, err := roleByName(s.db, roleName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.HasRole(userID, roleName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if !has {
		return OutcomeAlreadyAbsent, nil
	}

	err = s.db.Where("user_id = ? AND role_id = ?", userID, role.ID).
		Delete(&models.UserRole{}).Error
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to remove role: %w", err)
	}

	return OutcomeApplied, nil
}

// HasPermission checks if a user has a specific permission, either granted
// directly or carried by one of the user's roles.
func (s *Service) HasPermission(userID uint64, permission string) (bool, error) {
	var count int64

	// Direct grants first, the cheaper check.
	err := s.db.Table("permissions").
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ? AND permissions.name = ?", userID, permission).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check direct permission: %w", err)
	}

	if count > 0 {
		return true, nil
	}

	// Then permissions carried by the user's roles.
	err = s.db.Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ? AND permissions.name = ?", userID, permission).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check role permission: %w", err)
	}

	return count > 0, nil
}

// HasDirectPermission checks if a user holds the permission as a direct
// grant, ignoring role-carried permissions. Used by grant/revoke to decide
// the no-op outcome: a role-carried permission must not suppress a direct grant.
func (s *Service) HasDirectPermission(userID uint64, permission string) (bool, error) {
	var count int64

	err := s.db.Table("permissions").
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ? AND permissions.name = ?", userID, permission).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check direct permission: %w", err)
	}

	return count > 0, nil
}

// GrantPermission grants the named permission directly to a user.
func (s *Service) GrantPermission(userID uint64, permissionName string) (Outcome, error) {
	permission, err := permissionByName(s.db, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.HasDirectPermission(userID, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if has {
		return OutcomeAlreadyPresent, nil
	}

	err = s.db.Create(&models.UserPermission{UserID: userID, PermissionID: permission.ID}).Error
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to grant permission: %w", err)
	}

	return OutcomeApplied, nil
}

// RevokePermission removes a direct permission grant from a user.
func (s *Service) RevokePermission(userID uint64, permissionName string) (Outcome, error) {
	permission, err := permissionByName(s.db, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.HasDirectPermission(userID, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if !has {
		return OutcomeAlreadyAbsent, nil
	}

	err = s.db.Where("user_id = ? AND permission_id = ?", userID, permission.ID).
		Delete(&models.UserPermission{}).Error
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to revoke permission: %w", err)
	}

	return OutcomeApplied, nil
}

// RoleHasPermission checks if a role carries the named permission.
func (s *Service) RoleHasPermission(roleID uint, permissionName string) (bool, error) {
	var count int64

	err := s.db.Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ? AND permissions.name = ?", roleID, permissionName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check role permission: %w", err)
	}

	return count > 0, nil
}

// GrantRolePermission attaches the named permission to a role.
func (s *Service) GrantRolePermission(roleID uint, permissionName string) (Outcome, error) {
	permission, err := permissionByName(s.db, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.RoleHasPermission(roleID, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if has {
		return OutcomeAlreadyPresent, nil
	}

	err = s.db.Create(&models.RolePermission{RoleID: roleID, PermissionID: permission.ID}).Error
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to grant role permission: %w", err)
	}

	return OutcomeApplied, nil
}

// RevokeRolePermission detaches the named permission from a role.
func (s *Service) RevokeRolePermission(roleID uint, permissionName string) (Outcome, error) {
	permission, err := permissionByName(s.db, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	has, err := s.RoleHasPermission(roleID, permissionName)
	if err != nil {
		return OutcomeAlreadyAbsent, err
	}

	if !has {
		return OutcomeAlreadyAbsent, nil
	}

	err = s.db.Where("role_id = ? AND permission_id = ?", roleID, permission.ID).
		Delete(&models.RolePermission{}).Error
	if err != nil {
		return OutcomeAlreadyAbsent, fmt.Errorf("failed to revoke role permission: %w", err)
	}

	return OutcomeApplied, nil
}

// CreateRole creates a role and attaches the named permissions in a single
// transaction: either the role exists with all its permissions, or nothing
// is persisted.
func (s *Service) CreateRole(name, description string, permissionNames []string) (*models.Role, error) {
	role := models.Role{Name: name, Description: description}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Role{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check role name: %w", err)
		}

		if count > 0 {
			return ErrRoleNameExists
		}

		if err := tx.Create(&role).Error; err != nil {
			return fmt.Errorf("failed to create role: %w", err)
		}

		for _, permissionName := range permissionNames {
			permission, err := permissionByName(tx, permissionName)
			if err != nil {
				return err
			}

			err = tx.Create(&models.RolePermission{RoleID: role.ID, PermissionID: permission.ID}).Error
			if err != nil {
				return fmt.Errorf("failed to attach permission %s: %w", permissionName, err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &role, nil
}

// SyncRolePermissions replaces a role's permission set with the named
// permissions, atomically. Unknown permission names abort the whole sync.
func (s *Service) SyncRolePermissions(roleID uint, permissionNames []string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}

			return fmt.Errorf("failed to query role: %w", err)
		}

		// Resolve every name before touching the existing set.
		permissionIDs := make([]uint, 0, len(permissionNames))

		for _, permissionName := range permissionNames {
			permission, err := permissionByName(tx, permissionName)
			if err != nil {
				return err
			}

			permissionIDs = append(permissionIDs, permission.ID)
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		for _, permissionID := range permissionIDs {
			err := tx.Create(&models.RolePermission{RoleID: roleID, PermissionID: permissionID}).Error
			if err != nil {
				return fmt.Errorf("failed to attach permission: %w", err)
			}
		}

		return nil
	})
}

// CreatePermission adds a permission to the catalog.
func (s *Service) CreatePermission(name, description string) (*models.Permission, error) {
	var count int64
	if err := s.db.Model(&models.Permission{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check permission name: %w", err)
	}

	if count > 0 {
		return nil, ErrPermissionNameExists
	}

	permission := models.Permission{Name: name, Description: description}
	if err := s.db.Create(&permission).Error; err != nil {
		return nil, fmt.Errorf("failed to create permission: %w", err)
	}

	return &permission, nil
}

// DeleteRole deletes a role. Rejected with ErrRoleInUse while any user still
// holds the role; the role's own permission attachments are removed with it.
func (s *Service) DeleteRole(roleID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var role models.Role
		if err := tx.First(&role, roleID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoleNotFound
			}

			return fmt.Errorf("failed to query role: %w", err)
		}

		users, err := s.roleUserCount(tx, roleID)
		if err != nil {
			return err
		}

		if users > 0 {
			return ErrRoleInUse
		}

		if err := tx.Where("role_id = ?", roleID).Delete(&models.RolePermission{}).Error; err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}

		if err := tx.Delete(&models.Role{}, roleID).Error; err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}

		return nil
	})
}

// DeletePermission deletes a permission from the catalog. Rejected with
// ErrPermissionInUse while any role or user still carries it.
func (s *Service) DeletePermission(permissionID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var permission models.Permission
		if err := tx.First(&permission, permissionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPermissionNotFound
			}

			return fmt.Errorf("failed to query permission: %w", err)
		}

		var roles int64

		err := tx.Model(&models.RolePermission{}).
			Where("permission_id = ?", permissionID).
			Count(&roles).Error
		if err != nil {
			return fmt.Errorf("failed to count permission roles: %w", err)
		}

		var users int64

		err = tx.Model(&models.UserPermission{}).
			Where("permission_id = ?", permissionID).
			Count(&users).Error
		if err != nil {
			return fmt.Errorf("failed to count permission users: %w", err)
		}

		if roles > 0 || users > 0 {
			return ErrPermissionInUse
		}

		if err := tx.Delete(&models.Permission{}, permissionID).Error; err != nil {
			return fmt.Errorf("failed to delete permission: %w", err)
		}

		return nil
	})
}

func (s *Service) roleUserCount(tx *gorm.DB, roleID uint) (int64, error) {
	var count int64

	err := tx.Model(&models.UserRole{}).Where("role_id = ?", roleID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count role users: %w", err)
	}

	return count, nil
}

// RoleUserCount returns how many users hold the role.
func (s *Service) RoleUserCount(roleID uint) (int64, error) {
	return s.roleUserCount(s.db, roleID)
}

// RolePermissionCount returns how many permissions the role carries.
func (s *Service) RolePermissionCount(roleID uint) (int64, error) {
	var count int64

	err := s.db.Model(&models.RolePermission{}).Where("role_id = ?", roleID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count role permissions: %w", err)
	}

	return count, nil
}

// PermissionRoleCount returns how many roles carry the permission.
func (s *Service) PermissionRoleCount(permissionID uint) (int64, error) {
	var count int64

	err := s.db.Model(&models.RolePermission{}).
		Where("permission_id = ?", permissionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count permission roles: %w", err)
	}

	return count, nil
}

// PermissionUserCount returns how many users hold the permission directly.
func (s *Service) PermissionUserCount(permissionID uint) (int64, error) {
	var count int64

	err := s.db.Model(&models.UserPermission{}).
		Where("permission_id = ?", permissionID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count permission users: %w", err)
	}

	return count, nil
}

// GetUserPermissions retrieves the user's effective permission names: the
// union of direct grants and role-carried permissions.
func (s *Service) GetUserPermissions(userID uint64) ([]string, error) {
	var direct []string

	err := s.db.Table("permissions").
		Select("DISTINCT permissions.name").
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ?", userID).
		Pluck("permissions.name", &direct).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get direct permissions: %w", err)
	}

	var viaRoles []string

	err = s.db.Table("permissions").
		Select("DISTINCT permissions.name").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Where("user_roles.user_id = ?", userID).
		Pluck("permissions.name", &viaRoles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}

	seen := make(map[string]bool, len(direct)+len(viaRoles))
	result := make([]string, 0, len(direct)+len(viaRoles))

	for _, name := range direct {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}

	for _, name := range viaRoles {
		if !seen[name] {
			seen[name] = true
			result = append(result, name)
		}
	}

	return result, nil
}

// GetUserRoles retrieves the roles the user holds.
func (s *Service) GetUserRoles(userID uint64) ([]models.Role, error) {
	var roles []models.Role

	err := s.db.Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get user roles: %w", err)
	}

	return roles, nil
}
