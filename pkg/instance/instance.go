package instance

import "os"

var idEnvVars = []string{"DYNO", "HOSTNAME"}

// GetID names the running process for log correlation: the platform dyno,
// then the host name, then "local".
func GetID() string {
	for _, key := range idEnvVars {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	return "local"
}
