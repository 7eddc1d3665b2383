/*
Package client is the Go client for the steward HTTP API. It submits
tasks, polls them to completion, manages SSH sessions and downloads
backup artefacts. The CLI is its main consumer.
*/
package client
