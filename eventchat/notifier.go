package eventchat

// NoticeLevel grades a user-visible notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeError
)

func (l NoticeLevel) String() string {
	switch l {
	case NoticeSuccess:
		return "success"
	case NoticeError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the user, such as a toast.
type Notice struct {
	Level   NoticeLevel
	Message string
}

// Notifier shows notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// logNotifier is the default: notices only reach the log.
type logNotifier struct {
	logger Logger
}

func (n logNotifier) Notify(notice Notice) {
	fields := map[string]any{"level": notice.Level.String()}
	if notice.Level == NoticeError {
		n.logger.Warn(notice.Message, fields)
		return
	}
	n.logger.Info(notice.Message, fields)
}
