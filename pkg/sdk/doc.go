// Package sdk is a Go client for the gallery HTTP API.
//
// It covers the full upload lifecycle (review, confirm, metadata updates,
// delete), hybrid search, and the admin backfill and cleanup operations.
//
//	client := sdk.New("http://localhost:8080", sdk.WithAPIKey("secret"))
//	review, err := client.Review(ctx, f, "holiday.jpg", nil)
//	...
//	img, err := client.Confirm(ctx, review.SessionID, review.Metadata)
package sdk
