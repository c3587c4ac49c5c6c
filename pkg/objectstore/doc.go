// Package objectstore moves task inputs and conversion artifacts
// between local workspaces and any S3-compatible store.
//
// # Architecture
//
// The package wraps minio-go behind a small Gateway interface so the
// pipeline never handles raw client calls, and derives every output key
// from the task's source placement:
//
//	┌──────────────────────────────────────────────────┐
//	│                    Gateway                       │
//	│  Download / Exists / Fetch / UploadFile /        │
//	│  UploadDirectory / Presign                       │
//	└───────────────┬──────────────────────────────────┘
//	                │
//	        ┌───────┴────────┐
//	        │   S3Gateway    │  minio-go v7 client
//	        └───────┬────────┘
//	                │
//	   ┌────────────┴────────────────┐
//	   │   AWS S3 / MinIO / RustFS   │
//	   └─────────────────────────────┘
//
// Two gateways usually run side by side: one built from
// DownloadCredentials for reading source documents, one from
// UploadCredentials for writing artifacts. The chains accept the
// common S3, AWS and MinIO variable spellings so the service drops
// into existing deployments unchanged.
//
// # Core Components
//
//   - Credentials: resolved connection settings with endpoint and
//     region handling for both AWS and custom endpoints.
//   - Source / DeriveSource: computes where a task's artifacts belong
//     from its input bucket and key, repairing mojibake names and
//     unwrapping inputs that are themselves prior conversion outputs.
//   - ConversionMetadata: task provenance attached to every upload,
//     with non-ASCII values carried base64 and hex encoded.
//   - S3Gateway: the production Gateway. Downloads verify byte counts
//     against the object head; uploads verify post-hoc the same way.
//   - DirUpload: directory upload outcome. PrimaryURL picks the
//     markdown entry when present, else the largest artifact.
//
// # Key Layout
//
// Artifacts of one conversion share the prefix
//
//	{source bucket}/{folder}/{stem}/{pdf|markdown|converted}
//
// with empty folder segments omitted. Tasks without a usable object
// source fall back to converted/{task id}. All stored URLs use the
// canonical s3://bucket/key form; ParseURL also accepts the AWS
// path-style and virtual-hosted HTTP forms on the way back in.
//
// # Usage
//
//	gw, err := objectstore.NewS3Gateway(objectstore.UploadCredentials())
//	if err != nil {
//		return err
//	}
//
//	src := objectstore.DeriveSource(task, gw.Bucket())
//	key := src.OutputKey(task.TaskType, task.ID, "rep.md")
//	up, err := gw.UploadFile(ctx, localPath, gw.Bucket(), key, meta)
//
// # Integration Points
//
//   - pkg/scheduler: downloads inputs into workspaces and uploads the
//     conversion output tree.
//   - pkg/api: streams stored artifacts through the download proxy and
//     issues presigned URLs.
//   - pkg/naming: repairs filename encodings before keys are derived.
//
// # Thread Safety
//
// S3Gateway is safe for concurrent use; minio-go clients are
// goroutine safe and the gateway itself holds no mutable state.
package objectstore
