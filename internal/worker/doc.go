// Package worker drains the job queue through the support workflow.
//
// A Pool runs a fixed number of goroutines. Each one pops a job, loads the
// thread's earlier messages as chat history, runs the workflow and records
// the outcome in the conversation history. Collaborator failures requeue the
// job until it runs out of attempts and is dead-lettered.
package worker
