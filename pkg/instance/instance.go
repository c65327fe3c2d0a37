package instance

import "os"

// ID names the running replica for log correlation: ORDERCORE_INSTANCE_ID,
// then the Heroku DYNO, then the host name.
func ID() string {
	for _, key := range []string{"ORDERCORE_INSTANCE_ID", "DYNO"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}
