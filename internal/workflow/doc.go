// Package workflow implements the support-reply decision pipeline.
//
// A run threads a single State through a fixed graph of nodes:
//
//	guard -> draft -> review -> send
//	  |                 |
//	  +----> escalate <-+
//
// The guard classifies the incoming question, the composer retrieves
// knowledge and drafts an answer, the reviewer decides whether the draft may
// be sent, and the dispatcher either sends the reply or hands the thread to
// the escalation sink.
//
// Model output is untrusted text. Guard and reviewer decode it strictly into
// a Decoded value and apply their fail-closed defaults at the call site: an
// unparseable guard verdict is unsafe, an unparseable review verdict escalates.
//
// Collaborators (Completer, Retriever, Sender, EscalationSink) are injected
// through Dependencies when the Orchestrator is built. Nothing in this
// package holds global state.
//
// Example usage:
//
//	orch, err := workflow.NewOrchestrator(workflow.Dependencies{
//	    Completer:  llmClient,
//	    Retriever:  knowledgeStore,
//	    Sender:     gmailClient,
//	    Escalation: queue.NewEscalationSink(rdb),
//	    Prompts:    workflow.NewPromptSource(cfg.Workflow.PromptsDir),
//	}, workflow.Options{TopK: 3})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := orch.Run(ctx, req)
package workflow
