package deletion

// message is anything posted to the coordinator's run loop.
type message interface{ isMessage() }

type reserveMsg struct {
	req   *request
	reply chan error
}

type finishMsg struct {
	token   string
	verdict Verdict
	ack     chan struct{}
}

type awaitMsg struct {
	ticket Ticket
	reply  chan bool
}

type consentMsg struct {
	token    string
	approved bool
	reply    chan bool
}

// withdrawMsg ends an open ticket without approval. reply may be nil.
type withdrawMsg struct {
	token   string
	outcome ConsentOutcome
	cause   error
	reply   chan bool
}

type pendingMsg struct {
	reply chan *Ticket
}

func (reserveMsg) isMessage()  {}
func (finishMsg) isMessage()   {}
func (awaitMsg) isMessage()    {}
func (consentMsg) isMessage()  {}
func (withdrawMsg) isMessage() {}
func (pendingMsg) isMessage()  {}
