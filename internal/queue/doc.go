// Package queue holds the Redis-backed pieces shared by the ingester and
// the workers: the job list, the dead-letter list, the escalation list the
// operators read from, and the sent ledger that keeps a redelivered job
// from answering the same message twice.
//
// Keys:
//
//	inboxreply:jobs          list of JSON Job, LPUSH / BRPOP
//	inboxreply:jobs:dead     jobs that exhausted their attempts
//	inboxreply:escalations   list of JSON workflow.Escalation, newest first
//	inboxreply:sent:<msgid>  sent ledger entries (SET NX with TTL)
package queue
