// Package gmail is the responder's view of the service mailbox: it lists
// and reads unread customer messages, marks them read once queued, sends
// threaded replies and registers the Pub/Sub push watch.
//
// Example usage:
//
//	hc, err := google.HTTPClient(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := gmail.NewClient(ctx, hc, metrics, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ids, err := client.UnreadMessages(ctx, "is:unread in:inbox", 25)
//	for _, id := range ids {
//	    msg, err := client.FetchInbound(ctx, id)
//	    ...
//	}
package gmail
