// Package google provides OAuth2 authentication for the service mailbox.
//
// The client secrets come from a Google Cloud "installed application"
// credentials file; the token (including the refresh token) is kept in a
// JSON token file that is rewritten whenever the access token is refreshed.
package google
