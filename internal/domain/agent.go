package domain

// AgentStatus 坐席工作状态
type AgentStatus string

const (
	AgentOnline   AgentStatus = "online"
	AgentBusy     AgentStatus = "busy"
	AgentBreak    AgentStatus = "break"
	AgentOffline  AgentStatus = "offline"
	AgentTraining AgentStatus = "training"
)

// statusTransitions 状态转换规则表
var statusTransitions = map[AgentStatus][]AgentStatus{
	AgentOffline:  {AgentOnline},
	AgentOnline:   {AgentBusy, AgentBreak, AgentOffline, AgentTraining},
	AgentBusy:     {AgentOnline, AgentBreak, AgentOffline},
	AgentBreak:    {AgentOnline, AgentOffline},
	AgentTraining: {AgentOnline, AgentOffline},
}

// IsValidStatusTransition 检查坐席状态转换是否允许
func IsValidStatusTransition(from, to AgentStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// AvailableTransitions 当前状态可转换到的状态列表
func AvailableTransitions(current AgentStatus) []AgentStatus {
	return append([]AgentStatus(nil), statusTransitions[current]...)
}
