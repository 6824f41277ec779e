package types

// Version is the canonical project version.
// The CLI and the manifest format share this version
// per the lockstep versioning policy.
const Version = "0.3.0"

// ManifestFormatVersion is the version of the output.json format.
// It is written into publication events and must equal Version.
const ManifestFormatVersion = Version
