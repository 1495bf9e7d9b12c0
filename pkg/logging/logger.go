package logging

const (
	LevelDebug = iota
	LevelInfo
	LevelWarn
	LevelError
)

type Logger interface {
	LogLevelf(level int, format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type LogFunc func(format string, args ...interface{})

// LogFuncs is the set of backend functions a Logger forwards to.
// Nil entries are skipped.
type LogFuncs struct {
	Debugf LogFunc
	Infof  LogFunc
	Warnf  LogFunc
	Errorf LogFunc
}

type logger struct {
	prefix string
	funcs  LogFuncs
}

func NewLogger(prefix string, funcs LogFuncs) Logger {
	return &logger{
		prefix: prefix,
		funcs:  funcs,
	}
}

func (l *logger) LogLevelf(level int, format string, args ...interface{}) {
	switch level {
	case LevelDebug:
		l.Debugf(format, args...)
	case LevelInfo:
		l.Infof(format, args...)
	case LevelWarn:
		l.Warnf(format, args...)
	default:
		l.Errorf(format, args...)
	}
}

func (l *logger) Debugf(format string, args ...interface{}) {
	l.call(l.funcs.Debugf, format, args...)
}

func (l *logger) Infof(format string, args ...interface{}) {
	l.call(l.funcs.Infof, format, args...)
}

func (l *logger) Warnf(format string, args ...interface{}) {
	l.call(l.funcs.Warnf, format, args...)
}

func (l *logger) Errorf(format string, args ...interface{}) {
	l.call(l.funcs.Errorf, format, args...)
}

func (l *logger) call(f LogFunc, format string, args ...interface{}) {
	if f == nil {
		return
	}
	f(l.prefix+format, args...)
}

type nopLogger struct{}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return nopLogger{}
}

func (nopLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (nopLogger) Debugf(format string, args ...interface{})               {}
func (nopLogger) Infof(format string, args ...interface{})                {}
func (nopLogger) Warnf(format string, args ...interface{})                {}
func (nopLogger) Errorf(format string, args ...interface{})               {}
