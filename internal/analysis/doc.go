// Package analysis labels and groups crawled listings: threshold-based foodie
// classification, k-means clustering over rating, review count and price,
// and descriptive summaries. It works on dataset rows so each step can read
// the previous step's CSV.
package analysis
