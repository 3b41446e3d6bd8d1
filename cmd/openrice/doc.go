// Package main hosts the openrice command.
//
// openrice crawl walks the configured district directories one at a time,
// extracts restaurant listings, and writes the JSON and CSV datasets. When
// configured it also mirrors the files to a blob store (local or GCS),
// upserts the listings into Postgres, publishes a dataset-ready message to
// Pub/Sub, and writes run metrics to a Prometheus textfile.
//
// openrice classify, cluster, and summary read a dataset back and derive
// foodie types, k-means price/popularity segments, and a descriptive summary.
//
// Configuration comes from an optional YAML file (--config), a .env file in
// the working directory, and OPENRICE_* environment variables, in increasing
// order of precedence.
package main
