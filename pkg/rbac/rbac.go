package rbac

import "fmt"

// 权限常量
const (
	PermissionLikeArtwork     = "artwork:like"
	PermissionCreateArtwork   = "artwork:create"
	PermissionModerateArtwork = "artwork:moderate"

	PermissionCreateProject = "project:create"
	PermissionApplyProject  = "project:apply"
	PermissionManageProject = "project:manage"

	PermissionManageAssets = "asset:manage"

	PermissionTrade  = "transaction:create"
	PermissionRefund = "transaction:refund"

	PermissionGenerateImage = "ai:generate"

	PermissionAdminStats  = "admin:stats"
	PermissionAdminUsers  = "admin:users"
	PermissionAdminOutbox = "admin:outbox"
)

// 角色常量
const (
	RoleUser       = "user"
	RoleCreator    = "creator"
	RoleEnterprise = "enterprise"
	RoleAdmin      = "admin"
)

var basePermissions = []string{
	PermissionLikeArtwork,
	PermissionCreateProject,
	PermissionTrade,
	PermissionGenerateImage,
}

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleUser: basePermissions,
	RoleCreator: append(append([]string{}, basePermissions...),
		PermissionCreateArtwork,
		PermissionApplyProject,
		PermissionManageAssets,
	),
	RoleEnterprise: append(append([]string{}, basePermissions...),
		PermissionManageProject,
		PermissionManageAssets,
	),
	RoleAdmin: append(append([]string{}, basePermissions...),
		PermissionCreateArtwork,
		PermissionModerateArtwork,
		PermissionApplyProject,
		PermissionManageProject,
		PermissionManageAssets,
		PermissionRefund,
		PermissionAdminStats,
		PermissionAdminUsers,
		PermissionAdminOutbox,
	),
}

// ValidRole 判断角色是否存在
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

// SelfServiceRole 注册时允许自行选择的角色（admin 只能由管理员授予）
func SelfServiceRole(role string) bool {
	return role == RoleUser || role == RoleCreator || role == RoleEnterprise
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role string, permission string) bool {
	permissions, ok := rolePermissions[role]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Permission)
}
