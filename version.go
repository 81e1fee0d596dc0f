package railyard

// Version is the release version, overridable at build time via
// -ldflags "-X github.com/railyard/railyard.Version=...".
var Version = "0.1.0"
