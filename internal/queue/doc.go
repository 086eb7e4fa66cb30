// Package queue provides the bounded FIFO that carries audio chunks between
// the ingest, decoder and player goroutines.
package queue
