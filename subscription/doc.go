// Package subscription records which tier each user is on. A user has at most
// one active subscription; changing tier supersedes the previous row instead
// of deleting it, so the table doubles as the user's history.
package subscription
