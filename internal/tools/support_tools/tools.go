package support_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxreply/internal/instrumentation"
	"github.com/teemow/inboxreply/internal/queue"
	"github.com/teemow/inboxreply/internal/tools/common"
	"github.com/teemow/inboxreply/internal/workflow"
)

const (
	defaultSender          = "Customer <customer@example.com>"
	defaultSubject         = "Question"
	defaultEscalationLimit = 20
	maxEscalationLimit     = 200
)

// Runner runs a workflow request. It must be wired with a non-delivering
// sender and sink; the tool never sends mail.
type Runner interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Result, error)
}

// EscalationLister lists recorded escalations. queue.EscalationSink satisfies it.
type EscalationLister interface {
	List(ctx context.Context, limit int64) ([]queue.EscalationRecord, error)
}

// QueueInspector reports queue depth. queue.JobQueue satisfies it.
type QueueInspector interface {
	Len(ctx context.Context) (int64, error)
	DeadLen(ctx context.Context) (int64, error)
}

// Dependencies are the collaborators of the support tools. Nil collaborators
// leave their tool unregistered.
type Dependencies struct {
	DryRun      Runner
	Escalations EscalationLister
	Queue       QueueInspector
	Metrics     *instrumentation.Metrics
	Logger      *slog.Logger
}

// Tool names.
const (
	ToolAnswerQuestion  = "support_answer_question"
	ToolListEscalations = "support_list_escalations"
	ToolQueueStatus     = "support_queue_status"
)

func answerQuestionTool() mcp.Tool {
	return mcp.NewTool(ToolAnswerQuestion,
		mcp.WithDescription("Run the support workflow (safety check, draft, review) for a customer question. Dry run: nothing is sent and no escalation is filed."),
		mcp.WithString("question",
			mcp.Required(),
			mcp.Description("The customer's question"),
		),
		mcp.WithString("sender",
			mcp.Description("Sender as in a From header, used for the greeting (default: 'Customer <customer@example.com>')"),
		),
		mcp.WithString("subject",
			mcp.Description("Email subject (default: 'Question')"),
		),
		mcp.WithString("chat_history",
			mcp.Description("Earlier messages of the conversation, one 'User: ...' or 'Agent: ...' line each"),
		),
	)
}

func listEscalationsTool() mcp.Tool {
	return mcp.NewTool(ToolListEscalations,
		mcp.WithDescription("List the newest escalations waiting for a human, newest first"),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of escalations (default: %d, max: %d)", defaultEscalationLimit, maxEscalationLimit)),
		),
	)
}

func queueStatusTool() mcp.Tool {
	return mcp.NewTool(ToolQueueStatus,
		mcp.WithDescription("Report how many jobs are waiting and how many were dead-lettered"),
	)
}

// Tools returns the definitions of every support tool.
func Tools() []mcp.Tool {
	return []mcp.Tool{answerQuestionTool(), listEscalationsTool(), queueStatusTool()}
}

// RegisterSupportTools registers the support tools with the MCP server.
func RegisterSupportTools(s *mcpserver.MCPServer, deps Dependencies) error {
	if deps.DryRun == nil && deps.Escalations == nil && deps.Queue == nil {
		return errors.New("no support tool dependencies configured")
	}

	if deps.DryRun != nil {
		s.AddTool(answerQuestionTool(), common.InstrumentedToolHandler(ToolAnswerQuestion, deps.Metrics, deps.Logger,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleAnswerQuestion(ctx, request, deps.DryRun)
			}))
	}

	if deps.Escalations != nil {
		s.AddTool(listEscalationsTool(), common.InstrumentedToolHandler(ToolListEscalations, deps.Metrics, deps.Logger,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleListEscalations(ctx, request, deps.Escalations)
			}))
	}

	if deps.Queue != nil {
		s.AddTool(queueStatusTool(), common.InstrumentedToolHandler(ToolQueueStatus, deps.Metrics, deps.Logger,
			func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return handleQueueStatus(ctx, deps.Queue)
			}))
	}

	return nil
}

func handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest, runner Runner) (*mcp.CallToolResult, error) {
	question := common.StringArg(request, "question", "")
	if question == "" {
		return mcp.NewToolResultError("'question' is required"), nil
	}

	req := workflow.Request{
		Question: question,
		OriginalMessage: workflow.OriginalMessage{
			ThreadID: "mcp-" + uuid.NewString(),
			Sender:   common.StringArg(request, "sender", defaultSender),
			Subject:  common.StringArg(request, "subject", defaultSubject),
		},
		ChatHistory: common.StringArg(request, "chat_history", ""),
	}

	result, err := runner.Run(ctx, req)
	if err != nil && result.Action == "" {
		return mcp.NewToolResultError(fmt.Sprintf("Workflow failed: %v", err)), nil
	}
	return jsonResult(result)
}

func handleListEscalations(ctx context.Context, request mcp.CallToolRequest, lister EscalationLister) (*mcp.CallToolResult, error) {
	limit := common.IntArg(request, "limit", defaultEscalationLimit)
	if limit < 1 {
		return mcp.NewToolResultError("'limit' must be at least 1"), nil
	}
	limit = min(limit, maxEscalationLimit)

	records, err := lister.List(ctx, int64(limit))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list escalations: %v", err)), nil
	}
	if len(records) == 0 {
		return mcp.NewToolResultText("No escalations."), nil
	}
	return jsonResult(records)
}

// QueueStatus is the support_queue_status result.
type QueueStatus struct {
	Waiting int64 `json:"waiting"`
	Dead    int64 `json:"dead"`
}

func handleQueueStatus(ctx context.Context, q QueueInspector) (*mcp.CallToolResult, error) {
	waiting, err := q.Len(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read queue: %v", err)), nil
	}
	dead, err := q.DeadLen(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to read dead-letter queue: %v", err)), nil
	}
	return jsonResult(QueueStatus{Waiting: waiting, Dead: dead})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
