// Package youtube uploads finished videos directly through the YouTube Data
// API. Uploads with a publish time go up private and YouTube flips them public
// at PublishAt.
package youtube
