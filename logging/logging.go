// Package logging configures github.com/sirupsen/logrus the way the
// teacher's server.Run does (TextFormatter + a rotate-file hook), scaled
// to this spec's single log file and soft head-truncation rolling policy
// (spec.md §6) instead of the teacher's numbered-backup rotation.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Setup attaches a stderr text formatter (colorized when stderr is a
// terminal) and a RotatingFileHook writing plain text to path, and
// returns a function to close the file handle at shutdown.
func Setup(path string) (func() error, error) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logrus.SetOutput(os.Stderr)

	hook, err := NewRotatingFileHook(path, 1<<30, 10<<20)
	if err != nil {
		return nil, err
	}
	logrus.AddHook(hook)

	return hook.Close, nil
}
