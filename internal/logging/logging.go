// Package logging provides the swarm's structured logging setup: a single
// logrus.Logger configured from CHAINSWARM_LOG_LEVEL, handed out per
// component as a tagged *logrus.Entry so log lines carry their subsystem.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	once sync.Once
	root *logrus.Logger
)

func rootLogger() *logrus.Logger {
	once.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stderr)
		root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		level, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(os.Getenv("CHAINSWARM_LOG_LEVEL"))))
		if err != nil {
			level = logrus.InfoLevel
		}
		root.SetLevel(level)
	})
	return root
}

// For returns a logger entry tagged with the given component name, e.g.
// logging.For("gossip").WithField("peer", addr).Warn("broadcast timed out").
func For(component string) *logrus.Entry {
	return rootLogger().WithField("component", component)
}
