package scheduler

import (
	"github.com/robfig/cron/v3"

	"github.com/youtube-agent/pkg/logger"
)

// Parser accepts standard 5-field expressions, an optional leading seconds field and descriptors like @daily
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// NewCron creates the cron engine shared by schedules and background jobs
func NewCron(log *logger.Logger) *cron.Cron {
	return cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(cronLogger{log.WithComponent("cron")}),
	)
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
