// Package support_tools exposes the support responder to operators over MCP.
//
// Tools:
//   - support_answer_question: run the workflow for a question without
//     sending mail or filing an escalation, and return the outcome
//   - support_list_escalations: list the newest escalations awaiting a human
//   - support_queue_status: report waiting and dead-lettered job counts
package support_tools
