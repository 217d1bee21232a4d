// Package files owns the on-disk layout of datasets and artifacts:
// uploaded CSVs under the uploads directory, generated reports and
// charts under the output directory.
//
// Discovery helpers list files by extension or pattern and resolve a
// CLI input argument (file or directory) into the CSV paths to load.
// Manager binds those operations to the configured paths and keeps
// the HTTP layer from ever joining request-supplied names into paths
// itself.
package files
