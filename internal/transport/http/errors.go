package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/Ayi-pei/yunjvcrm/internal/auth"
	"github.com/Ayi-pei/yunjvcrm/internal/service"
	"github.com/Ayi-pei/yunjvcrm/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 密钥错误
	service.ErrMalformedKey:          "密钥格式不正确",
	service.ErrKeyNotFound:           "密钥不存在",
	service.ErrKeyExpired:            "密钥已过期",
	service.ErrUsageExceeded:         "密钥使用次数已达上限",
	service.ErrInvalidValidityPeriod: "有效期超出允许范围",
	service.ErrInvalidKeyKind:        "密钥类型无效",
	service.ErrProtectedKey:          "保留密钥不允许删除",
	storage.ErrKeyValueExists:        "密钥值已存在",
	storage.ErrUsageConflict:         "密钥使用冲突，请重试",

	// 坐席错误
	service.ErrAgentNotFound:           "坐席不存在",
	service.ErrInvalidStatusTransition: "不允许的状态切换",

	// 会话错误
	service.ErrSessionNotFound:   "会话不存在",
	service.ErrSessionClosed:     "会话已关闭",
	service.ErrShareLinkNotFound: "分享链接不存在",
	service.ErrNoAvailableAgent:  "当前没有可用坐席",
	service.ErrContentRejected:   "消息包含不允许的内容",

	// 认证错误
	auth.ErrMissingAccessKey: "请输入访问密钥",
	storage.ErrUserNotFound:  "用户不存在",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	var inactive *service.KeyInactiveError
	if errors.As(err, &inactive) {
		return "密钥已被停用"
	}
	return err.Error()
}

// RespondError 将业务错误映射为统一响应
func RespondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)

	var inactive *service.KeyInactiveError
	switch {
	case errors.Is(err, service.ErrKeyNotFound),
		errors.Is(err, service.ErrAgentNotFound),
		errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrShareLinkNotFound),
		errors.Is(err, storage.ErrUserNotFound):
		NotFound(c, msg)
	case errors.Is(err, service.ErrMalformedKey),
		errors.Is(err, service.ErrInvalidValidityPeriod),
		errors.Is(err, service.ErrInvalidKeyKind),
		errors.Is(err, service.ErrContentRejected),
		errors.Is(err, auth.ErrMissingAccessKey):
		BadRequest(c, msg)
	case errors.Is(err, service.ErrKeyExpired),
		errors.Is(err, service.ErrUsageExceeded),
		errors.As(err, &inactive):
		Unauthorized(c, msg)
	case errors.Is(err, service.ErrProtectedKey):
		Forbidden(c, msg)
	case errors.Is(err, storage.ErrKeyValueExists),
		errors.Is(err, storage.ErrUsageConflict),
		errors.Is(err, service.ErrInvalidStatusTransition),
		errors.Is(err, service.ErrSessionClosed):
		Conflict(c, msg)
	case errors.Is(err, service.ErrNoAvailableAgent):
		UnprocessableEntity(c, msg)
	case errors.Is(err, storage.ErrUnavailable):
		InternalError(c, MsgStoreUnavailable)
	default:
		InternalError(c, MsgInternalError)
	}
}

// RespondLoginError 登录路径专用的错误映射
//
// 登录属于认证语境：格式合法但不存在的密钥与过期、停用一样
// 按认证失败（401）拒绝。资源语境（管理端按 ID 查询）
// 仍由 RespondError 返回 404。
func RespondLoginError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrKeyNotFound) {
		Unauthorized(c, GetErrorMessage(err))
		return
	}
	RespondError(c, err)
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgInvalidJSON      = "JSON格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired     = "需要登录认证"
	MsgTokenInvalid     = "无效的访问令牌"
	MsgPermissionDenied = "权限不足"

	// 密钥相关
	MsgKeyIssueFailed  = "生成密钥失败"
	MsgKeyListFailed   = "获取密钥列表失败"
	MsgKeyGetFailed    = "获取密钥详情失败"
	MsgKeyUpdateFailed = "更新密钥失败"
	MsgKeyDeleteFailed = "删除密钥失败"
	MsgKeyLogsFailed   = "获取使用日志失败"

	// 坐席相关
	MsgAgentListFailed   = "获取坐席列表失败"
	MsgAgentGetFailed    = "获取坐席信息失败"
	MsgAgentStatusFailed = "切换坐席状态失败"
	MsgAgentUpdateFailed = "更新坐席资料失败"

	// 会话相关
	MsgSessionStartFailed  = "发起会话失败"
	MsgSessionListFailed   = "获取会话列表失败"
	MsgSessionGetFailed    = "获取会话详情失败"
	MsgMessageListFailed   = "获取消息列表失败"
	MsgMessageSendFailed   = "发送消息失败"
	MsgShareLinkFailed     = "生成分享链接失败"
	MsgShareLinkNotExists  = "分享链接不存在"
	MsgSessionAcceptFailed = "接入会话失败"
	MsgSessionCloseFailed  = "关闭会话失败"

	// 统计相关
	MsgStatisticsGetFailed = "获取统计数据失败"

	// 服务器错误
	MsgInternalError    = "服务器内部错误，请稍后重试"
	MsgStoreUnavailable = "存储服务暂时不可用，请稍后重试"
)
