package logging

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
)

// New returns a logger writing to out at loglevel. Each verbosity step raises
// the level by one, up to trace.
func New(out io.Writer, loglevel string, verbosity int) (*log.Logger, error) {
	logger := log.New()
	if err := configure(logger, out, loglevel, verbosity); err != nil {
		return nil, err
	}
	return logger, nil
}

func configure(logger *log.Logger, out io.Writer, loglevel string, verbosity int) error {

	logger.SetOutput(out)

	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})

	level, err := log.ParseLevel(loglevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %v", loglevel, err)
	}

	logger.SetLevel(Raise(level, verbosity))

	return nil
}

// Raise returns level made more verbose by n steps.
func Raise(level log.Level, n int) log.Level {
	for ; n > 0 && level < log.TraceLevel; n-- {
		level++
	}
	return level
}
