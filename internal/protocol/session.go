package protocol

// State is where a session is in the login sequence.
type State int

const (
	StateUnauthenticated State = iota
	StateIdentified
	StateAuthenticated
)

const noAccount = -1

// Session is the per-connection state. Only the connection that owns it
// touches it, so it carries no lock.
type Session struct {
	clientID      int
	remoteAddr    string
	trusted       bool
	username      string
	salt          string
	authenticated bool
	accountID     int
	effectiveID   int
}

func NewSession(clientID int, remoteAddr string, trusted bool) *Session {
	return &Session{
		clientID:    clientID,
		remoteAddr:  remoteAddr,
		trusted:     trusted,
		accountID:   noAccount,
		effectiveID: noAccount,
	}
}

func (s *Session) ClientID() int      { return s.clientID }
func (s *Session) RemoteAddr() string { return s.remoteAddr }
func (s *Session) Trusted() bool      { return s.trusted }
func (s *Session) Username() string   { return s.username }
func (s *Session) AccountID() int     { return s.accountID }
func (s *Session) EffectiveID() int   { return s.effectiveID }

func (s *Session) State() State {
	switch {
	case s.authenticated:
		return StateAuthenticated
	case s.username != "":
		return StateIdentified
	default:
		return StateUnauthenticated
	}
}

// identify starts a new login as username with a fresh challenge.
func (s *Session) identify(username, salt string) {
	s.username = username
	s.salt = salt
	s.authenticated = false
	s.accountID = noAccount
	s.effectiveID = noAccount
}

func (s *Session) authenticate(username string, accountID int) {
	s.username = username
	s.authenticated = true
	s.accountID = accountID
	s.effectiveID = noAccount
	// A challenge is good for one attempt.
	s.salt = ""
}

// payer is the account charged by money-moving commands.
func (s *Session) payer() int {
	if s.effectiveID != noAccount {
		return s.effectiveID
	}
	return s.accountID
}
