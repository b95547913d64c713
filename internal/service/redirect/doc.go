// Package redirect implements the redirect lookup service: the
// read path the gateway's decision and dispatch pipeline uses to
// resolve a public ID into its configured human/bot destinations.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package redirect
