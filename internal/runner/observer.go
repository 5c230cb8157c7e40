package runner

// Observer receives run events. Calls are made synchronously from the
// dispatch loop in the order events happen; implementations should return
// quickly.
type Observer interface {
	OnStart(info RunInfo)
	OnLog(line string)
	OnProgress(c Counters)
	OnComplete(s Summary)
	OnError(err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) OnStart(RunInfo)     {}
func (NopObserver) OnLog(string)        {}
func (NopObserver) OnProgress(Counters) {}
func (NopObserver) OnComplete(Summary)  {}
func (NopObserver) OnError(error)       {}

type multiObserver []Observer

// Observers fans every event out to each non-nil observer in order.
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) OnStart(info RunInfo) {
	for _, o := range m {
		o.OnStart(info)
	}
}

func (m multiObserver) OnLog(line string) {
	for _, o := range m {
		o.OnLog(line)
	}
}

func (m multiObserver) OnProgress(c Counters) {
	for _, o := range m {
		o.OnProgress(c)
	}
}

func (m multiObserver) OnComplete(s Summary) {
	for _, o := range m {
		o.OnComplete(s)
	}
}

func (m multiObserver) OnError(err error) {
	for _, o := range m {
		o.OnError(err)
	}
}
