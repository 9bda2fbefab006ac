// Package tools exposes the orchestration core to a delegating agent as
// Anthropic tool definitions and JSON tool handlers.
package tools

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Tool names.
const (
	PlanSubmit      = "plan_submit"
	PlanGet         = "plan_get"
	PlanExecute     = "plan_execute"
	SubagentOpen    = "subagent_open"
	SubagentReply   = "subagent_reply"
	SubagentMailbox = "subagent_mailbox"
	SubagentRead    = "subagent_read"
	SubagentEnd     = "subagent_end"
	SubagentList    = "subagent_list"
	SubagentInbox   = "subagent_inbox"
)

func str(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "string", "description": desc}
}

func integer(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "integer", "description": desc}
}

func boolean(desc string) map[string]interface{} {
	return map[string]interface{}{"type": "boolean", "description": desc}
}

func strList(desc string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": desc,
	}
}

func taskSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":                  str("Task ID, unique within the plan"),
			"goal":                str("What the subagent must accomplish"),
			"role_prompt":         str("Extra persona text for the subagent (optional)"),
			"working_directory":   str("Working directory override (optional)"),
			"model_override":      str("Model override (optional)"),
			"mode":                map[string]interface{}{"type": "string", "enum": []string{"blocking", "nonblocking"}},
			"max_turns":           integer("Maximum reply cycles; 0 means one"),
			"max_idle_runtime_ms": integer("Idle timeout in milliseconds; 0 disables it"),
			"dependencies":        strList("IDs of tasks that must complete first"),
			"deliverables":        strList("Expected outputs"),
			"in_scope":            str("What the subagent may touch"),
			"out_of_scope":        str("What the subagent must leave alone"),
			"resources":           strList("Useful files, links or notes"),
			"risks":               strList("Known hazards"),
		},
		"required": []string{"id", "goal"},
	}
}

// Definitions returns the tool schemas for the delegation operations.
func Definitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        PlanSubmit,
				Description: anthropic.String("Submit a plan of tasks with dependencies. Returns the plan ID, or a validation error naming the broken rule."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"objective":   str("What the plan achieves"),
						"assumptions": strList("Assumptions every task may rely on"),
						"concurrency": integer("Maximum tasks running at once; 0 uses the global cap"),
						"tasks": map[string]interface{}{
							"type":        "array",
							"items":       taskSchema(),
							"description": "Tasks in declared order",
						},
					},
					Required: []string{"objective", "tasks"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        PlanGet,
				Description: anthropic.String("Return a submitted plan."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"plan_id": str("Plan ID returned by plan_submit"),
					},
					Required: []string{"plan_id"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        PlanExecute,
				Description: anthropic.String("Execute a plan. With confirm false nothing is spawned and the plan is returned for review. Otherwise waits for the run and returns its progress and summary."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"plan_id":     str("Plan ID returned by plan_submit"),
						"concurrency": integer("Override the plan's concurrency for this run (optional)"),
						"confirm":     boolean("Must be true to start workers"),
					},
					Required: []string{"plan_id", "confirm"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentOpen,
				Description: anthropic.String("Open a subagent for an ad hoc goal. It inherits your instructions, model, working directory and sandbox unless overridden. Send it work with subagent_reply."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"goal":                str("What the subagent must accomplish"),
						"role_prompt":         str("Extra persona text (optional)"),
						"model":               str("Model override (optional)"),
						"working_directory":   str("Working directory override (optional)"),
						"sandbox":             map[string]interface{}{"type": "string", "enum": []string{"read-only", "workspace-write", "danger-full-access"}, "description": "May only narrow your own sandbox"},
						"max_turns":           integer("Maximum reply cycles; 0 is unlimited"),
						"max_idle_runtime_ms": integer("Idle timeout in milliseconds; 0 disables it"),
					},
					Required: []string{"goal"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentReply,
				Description: anthropic.String("Send a message to a subagent. Blocking mode waits for and returns its reply; nonblocking mode returns at once and the reply lands in its mailbox."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"subagent_id": str("Subagent ID"),
						"message":     str("Message to send"),
						"mode":        map[string]interface{}{"type": "string", "enum": []string{"blocking", "nonblocking"}, "description": "Defaults to nonblocking"},
					},
					Required: []string{"subagent_id", "message"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentMailbox,
				Description: anthropic.String("List a subagent's notifications, most recent first."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"subagent_id": str("Subagent ID"),
						"only_unread": boolean("Only list unread notifications"),
					},
					Required: []string{"subagent_id"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentRead,
				Description: anthropic.String("Return one notification and mark it read."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"subagent_id": str("Subagent ID"),
						"mail_id":     str("Notification ID"),
					},
					Required: []string{"subagent_id", "mail_id"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentEnd,
				Description: anthropic.String("End a subagent and release its resources. Returns its final snapshot."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"subagent_id": str("Subagent ID"),
						"persist":     boolean("Store the snapshot and its notifications for later inspection"),
					},
					Required: []string{"subagent_id"},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentList,
				Description: anthropic.String("List live subagents, most recent activity first."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        SubagentInbox,
				Description: anthropic.String("List notifications across every live subagent, most recent first."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"only_unread": boolean("Only list unread notifications"),
						"mark_read":   boolean("Mark the listed notifications read"),
					},
				},
			},
		},
	}
}
