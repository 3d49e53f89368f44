// Package ingest turns unread customer emails into queued workflow jobs.
//
// One pass lists unread inbox messages, stores each as a user message in the
// conversation history, enqueues a workflow request for it and marks the
// Gmail message read. Passes are triggered by the Pub/Sub push endpoint, the
// serve command's poll interval or the ingest command.
package ingest
