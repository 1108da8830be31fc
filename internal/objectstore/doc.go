// Package objectstore republishes styled assets to durable, publicly readable
// object storage. The S3 implementation works against AWS S3 and S3-compatible
// stores such as Cloudflare R2 and MinIO.
package objectstore
