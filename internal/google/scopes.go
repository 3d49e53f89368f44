package google

import gmail "google.golang.org/api/gmail/v1"

// MailboxScopes are the Gmail scopes the responder needs: read incoming
// mail, mark it read, send replies and register a push watch.
var MailboxScopes = []string{
	gmail.GmailReadonlyScope,
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
}
