// Package crawler holds the listing data model, the collaborator interfaces
// and the Orchestrator that drives a sequential, throttled crawl across
// OpenRice district directories.
package crawler
