package domain

// Permission 扁平命名的能力项，授权时按名称精确匹配
//
// 不做前缀通配："agent.*" 不会隐含 "agent.edit"，必须逐项枚举。
type Permission struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// Role 角色，按权限集合与数值等级描述
type Role struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"displayName"`
	Level       int          `json:"level"` // 数值越大权限越高
	Permissions []Permission `json:"permissions"`
}

// 内置角色名
const (
	RoleSuperAdmin  = "super_admin"
	RoleAdmin       = "admin"
	RoleSupervisor  = "supervisor"
	RoleSeniorAgent = "senior_agent"
	RoleAgent       = "agent"
	RoleTrainee     = "trainee"
)

// 内置角色等级
const (
	LevelSuperAdmin  = 100
	LevelAdmin       = 90
	LevelSupervisor  = 70
	LevelSeniorAgent = 50
	LevelAgent       = 30
	LevelTrainee     = 10
)

// RoleNames 按权限等级从高到低排列的内置角色名
var RoleNames = []string{
	RoleSuperAdmin,
	RoleAdmin,
	RoleSupervisor,
	RoleSeniorAgent,
	RoleAgent,
	RoleTrainee,
}

// 权限目录
var AllPermissions = []Permission{
	// 聊天
	{Name: "chat.send", DisplayName: "发送消息", Category: "chat"},
	{Name: "chat.receive", DisplayName: "接收消息", Category: "chat"},
	{Name: "chat.transfer", DisplayName: "转接会话", Category: "chat"},
	{Name: "chat.end", DisplayName: "结束会话", Category: "chat"},
	{Name: "chat.history", DisplayName: "查看历史", Category: "chat"},
	// 数据
	{Name: "data.view.own", DisplayName: "查看个人数据", Category: "data"},
	{Name: "data.view.team", DisplayName: "查看团队数据", Category: "data"},
	{Name: "data.view.all", DisplayName: "查看全部数据", Category: "data"},
	{Name: "data.export", DisplayName: "导出数据", Category: "data"},
	// 管理
	{Name: "agent.create", DisplayName: "创建坐席", Category: "management"},
	{Name: "agent.edit", DisplayName: "编辑坐席", Category: "management"},
	{Name: "agent.delete", DisplayName: "删除坐席", Category: "management"},
	{Name: "agent.assign", DisplayName: "分配坐席", Category: "management"},
	// 系统
	{Name: "system.config", DisplayName: "系统配置", Category: "system"},
	{Name: "system.monitor", DisplayName: "系统监控", Category: "system"},
	{Name: "system.logs", DisplayName: "系统日志", Category: "system"},
	// 质检
	{Name: "quality.check", DisplayName: "质量检查", Category: "quality"},
	{Name: "quality.report", DisplayName: "质检报告", Category: "quality"},
	// 培训
	{Name: "training.conduct", DisplayName: "培训指导", Category: "training"},
	{Name: "training.receive", DisplayName: "接受培训", Category: "training"},
}

// BuiltinRoles 内置角色表，按名称索引
var BuiltinRoles = buildRoles()

func buildRoles() map[string]*Role {
	pick := func(names ...string) []Permission {
		set := make(map[string]bool, len(names))
		for _, n := range names {
			set[n] = true
		}
		out := make([]Permission, 0, len(names))
		for _, p := range AllPermissions {
			if set[p.Name] {
				out = append(out, p)
			}
		}
		return out
	}
	category := func(cats ...string) []string {
		var names []string
		set := make(map[string]bool, len(cats))
		for _, c := range cats {
			set[c] = true
		}
		for _, p := range AllPermissions {
			if set[p.Category] {
				names = append(names, p.Name)
			}
		}
		return names
	}

	roles := map[string]*Role{
		RoleSuperAdmin: {
			Name:        RoleSuperAdmin,
			DisplayName: "超级管理员",
			Level:       LevelSuperAdmin,
			Permissions: append([]Permission(nil), AllPermissions...),
		},
		RoleAdmin: {
			Name:        RoleAdmin,
			DisplayName: "管理员",
			Level:       LevelAdmin,
			Permissions: pickExcept("system.config"),
		},
		RoleSupervisor: {
			Name:        RoleSupervisor,
			DisplayName: "主管",
			Level:       LevelSupervisor,
			Permissions: pick(append(category("chat", "quality"),
				"data.view.own", "data.view.team", "agent.assign")...),
		},
		RoleSeniorAgent: {
			Name:        RoleSeniorAgent,
			DisplayName: "高级客服",
			Level:       LevelSeniorAgent,
			Permissions: pick(append(category("chat"),
				"data.view.own", "training.conduct")...),
		},
		RoleAgent: {
			Name:        RoleAgent,
			DisplayName: "普通客服",
			Level:       LevelAgent,
			Permissions: pick("chat.send", "chat.receive", "chat.end",
				"chat.history", "data.view.own"),
		},
		RoleTrainee: {
			Name:        RoleTrainee,
			DisplayName: "实习客服",
			Level:       LevelTrainee,
			Permissions: pick("chat.send", "chat.receive", "data.view.own",
				"training.receive"),
		},
	}
	return roles
}

func pickExcept(excluded ...string) []Permission {
	set := make(map[string]bool, len(excluded))
	for _, n := range excluded {
		set[n] = true
	}
	out := make([]Permission, 0, len(AllPermissions))
	for _, p := range AllPermissions {
		if !set[p.Name] {
			out = append(out, p)
		}
	}
	return out
}

// GetRole 按名称查找内置角色
func GetRole(name string) (*Role, bool) {
	role, ok := BuiltinRoles[name]
	return role, ok
}

// HasPermission 判断角色是否拥有指定权限
//
// 超级管理员拥有全部权限；其余角色按名称精确匹配。
func (r *Role) HasPermission(permissionName string) bool {
	if r.Name == RoleSuperAdmin {
		return true
	}
	for _, p := range r.Permissions {
		if p.Name == permissionName {
			return true
		}
	}
	return false
}

// HasAnyRole 判断角色名是否在允许列表中
func (r *Role) HasAnyRole(allowed ...string) bool {
	for _, name := range allowed {
		if r.Name == name {
			return true
		}
	}
	return false
}

// HasMinimumLevel 判断角色等级是否不低于要求
func (r *Role) HasMinimumLevel(level int) bool {
	return r.Level >= level
}

// IsAdminRole 管理端角色（admin 或 super_admin）
func IsAdminRole(name string) bool {
	return name == RoleAdmin || name == RoleSuperAdmin
}
