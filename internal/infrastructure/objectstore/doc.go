// Package objectstore stores uploaded entity images (organization logos,
// site and building covers, floor and room diagrams) in an S3-compatible
// bucket through minio-go.
//
// Configuration:
//
//	media:
//	  enabled: true
//	  endpoint: "s3.eu-west-1.amazonaws.com"
//	  region: "eu-west-1"
//	  bucket: "facility-media"
//	  cdn_url: "https://cdn.example.com"
//
// Object keys are <owner>/<folder>/<uuid><ext>. Credentials are never logged.
package objectstore
