// Package jobservice talks to the remote generation service.
//
// Client submits flattened canvas bitmaps as multipart uploads, cancels queued
// jobs, looks up image metadata, and downloads finished pixels. Subscribe opens
// the websocket event stream and hands each raw frame to a callback; decoding
// and routing are the event ingestor's job.
package jobservice
