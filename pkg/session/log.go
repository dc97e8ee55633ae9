package session

import log "github.com/sirupsen/logrus"

// setLogLevel adjusts runtime verbosity in response to a DEBUG op_type
// request (spec.md §4.F), accepting either a logrus level name or one of
// the original backend's numeric -D levels (0-3).
func setLogLevel(level string) {
	switch level {
	case "0":
		log.SetLevel(log.WarnLevel)
	case "1":
		log.SetLevel(log.InfoLevel)
	case "2", "3":
		log.SetLevel(log.DebugLevel)
	default:
		if lvl, err := log.ParseLevel(level); err == nil {
			log.SetLevel(lvl)
		}
	}
}
