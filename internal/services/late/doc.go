// Package late wraps the Late scheduling API: one CreatePost call publishes a
// video to several connected platform accounts at an absolute time.
package late
