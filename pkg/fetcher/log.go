package fetcher

import (
	"io"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "fetcher")

// closeQuietly closes c, logging a failure instead of returning it.
func closeQuietly(c io.Closer, source string) {
	if err := c.Close(); err != nil {
		log.WithField("source", source).Debugf("close error: %v", err)
	}
}
