// Package heygen submits avatar video jobs to the HeyGen API and reads their
// status back, either by polling or from the provider's webhook payload.
package heygen
