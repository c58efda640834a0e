package brain

import "github.com/soms-platform/soms-core/internal/llmclient"

// ToolName is the closed set of actions the ReAct loop may invoke. No
// other tool name is ever accepted from the model.
type ToolName string

const (
	ToolCreateTask        ToolName = "create_task"
	ToolSendDeviceCommand ToolName = "send_device_command"
	ToolSpeak             ToolName = "speak"
	ToolGetZoneStatus     ToolName = "get_zone_status"
	ToolGetActiveTasks    ToolName = "get_active_tasks"
)

// CreateTaskArgs is create_task's argument shape.
type CreateTaskArgs struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Location             string   `json:"location"`
	Zone                 string   `json:"zone"`
	TaskType             []string `json:"task_type"`
	BountyGold           int      `json:"bounty_gold"`
	BountyXP             int      `json:"bounty_xp"`
	Urgency              int      `json:"urgency"`
	MinPeopleRequired    int      `json:"min_people_required"`
	EstimatedDurationMin int      `json:"estimated_duration_min"`
	NonInterruptible     bool     `json:"non_interruptible"`
}

// SendDeviceCommandArgs is send_device_command's argument shape. It
// shapes one MCP tool call: agent_id names the device-side MCP agent,
// tool is the RPC method, arguments is the opaque JSON-RPC payload.
type SendDeviceCommandArgs struct {
	AgentID   string                 `json:"agent_id"`
	Tool      string                 `json:"tool"`
	Arguments map[string]interface{} `json:"arguments"`
}

// SpeakArgs is speak's argument shape.
type SpeakArgs struct {
	Zone    string `json:"zone"`
	Message string `json:"message"`
	Tone    string `json:"tone"`
}

// GetZoneStatusArgs is get_zone_status's argument shape.
type GetZoneStatusArgs struct {
	Zone string `json:"zone"`
}

// GetActiveTasksArgs is get_active_tasks's argument shape (none).
type GetActiveTasksArgs struct{}

func strParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func intParam(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func newTool(name ToolName, description string, required []string, properties map[string]interface{}) llmclient.ToolDefinition {
	var def llmclient.ToolDefinition
	def.Type = "function"
	def.Function.Name = string(name)
	def.Function.Description = description
	def.Function.Parameters = map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
	return def
}

// ToolDefinitions returns the fixed, closed tool set offered to the
// model every cycle.
func ToolDefinitions() []llmclient.ToolDefinition {
	return []llmclient.ToolDefinition{
		newTool(ToolCreateTask, "Create (or fold into a near-duplicate) a task for a human to act on.",
			[]string{"title", "description"},
			map[string]interface{}{
				"title":                  strParam("short human-facing title"),
				"description":            strParam("what needs doing and why"),
				"location":               strParam("free-text location, e.g. 'kitchen counter'"),
				"zone":                   strParam("zone id this task is scoped to, empty if unscoped"),
				"task_type":              map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}, "description": "tags used for duplicate detection"},
				"bounty_gold":            intParam("gold reward, 0-5000"),
				"bounty_xp":              intParam("xp reward for devices in the zone"),
				"urgency":                intParam("0 (low) to 4 (critical)"),
				"min_people_required":    intParam("people that must be present in the zone before dispatch"),
				"estimated_duration_min": intParam("estimated minutes to complete"),
				"non_interruptible":      map[string]interface{}{"type": "boolean", "description": "true if this task should wait out focused activity in its zone rather than interrupt it"},
			}),
		newTool(ToolSendDeviceCommand, "Send a command to a device's MCP agent.",
			[]string{"agent_id", "tool"},
			map[string]interface{}{
				"agent_id":  strParam("the target device's MCP agent id"),
				"tool":      strParam("the MCP tool/method name to invoke"),
				"arguments": map[string]interface{}{"type": "object", "description": "arguments for the device tool call"},
			}),
		newTool(ToolSpeak, "Speak a short message aloud in a zone.",
			[]string{"zone", "message"},
			map[string]interface{}{
				"zone":    strParam("zone id to speak in"),
				"message": strParam("what to say, non-empty"),
				"tone":    strParam("optional tone hint for synthesis"),
			}),
		newTool(ToolGetZoneStatus, "Read-only: fetch a zone's current fused sensor/occupancy state.",
			[]string{"zone"},
			map[string]interface{}{"zone": strParam("zone id to inspect")}),
		newTool(ToolGetActiveTasks, "Read-only: list tasks that are not yet completed.", nil, map[string]interface{}{}),
	}
}
