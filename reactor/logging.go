// Author: momentics <momentics@gmail.com>
//
// Ambient logging via sirupsen/logrus. The reactor/socket core never owns
// a logger lifecycle; it writes through a package-level sink that callers
// may replace.

package reactor

import "github.com/sirupsen/logrus"

var log logrus.FieldLogger = defaultLogger()

func defaultLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return l
}

// SetLogger replaces the package-level logging sink. Passing nil restores
// the default stderr/WarnLevel logger.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		log = defaultLogger()
		return
	}
	log = l
}
