package version

// Version is stamped by the release build (-ldflags "-X ...").
var Version = "dev"

// Get returns the running version, "dev" for unstamped builds.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}
