// Package errkind classifies failures raised anywhere in the monitoring
// core into the kinds the state machine and its collaborators can act
// on: config, rpc, api, telegram (notifier), exhausted and generic.
package errkind

import "fmt"

// Kind identifies which error class an error belongs to.
type Kind string

const (
	Config    Kind = "config"
	RPC       Kind = "rpc"
	API       Kind = "api"
	Notifier  Kind = "telegram"
	Exhausted Kind = "exhausted"
	Generic   Kind = "generic"
)

// Error is a tagged error carrying its Kind plus whatever context the
// call site that raised it could attach (endpoint, HTTP status/url).
type Error struct {
	kind     Kind
	endpoint string
	status   int
	url      string
	err      error
}

func (e *Error) Error() string {
	switch e.kind {
	case RPC:
		return fmt.Sprintf("rpc error (endpoint=%s): %v", e.endpoint, e.err)
	case API:
		return fmt.Sprintf("api error (status=%d url=%s): %v", e.status, e.url, e.err)
	default:
		return fmt.Sprintf("%s error: %v", e.kind, e.err)
	}
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the error's classification.
func (e *Error) Kind() Kind { return e.kind }

// Endpoint returns the RPC endpoint associated with an RPC-kind error.
func (e *Error) Endpoint() string { return e.endpoint }

// Status returns the HTTP status associated with an API-kind error.
func (e *Error) Status() int { return e.status }

// URL returns the request URL associated with an API-kind error.
func (e *Error) URL() string { return e.url }

// NewConfig wraps err as a fatal, non-recoverable config error.
func NewConfig(err error) error {
	return &Error{kind: Config, err: err}
}

// NewRPC wraps err as a recoverable RPC error tied to endpoint.
func NewRPC(endpoint string, err error) error {
	return &Error{kind: RPC, endpoint: endpoint, err: err}
}

// NewAPI wraps err as a recoverable API error carrying an HTTP status.
func NewAPI(status int, url string, err error) error {
	return &Error{kind: API, status: status, url: url, err: err}
}

// NewNotifier wraps err as a recoverable, always-swallowed notifier error.
func NewNotifier(err error) error {
	return &Error{kind: Notifier, err: err}
}

// NewGeneric wraps err as a recoverable error of unspecified kind.
func NewGeneric(err error) error {
	return &Error{kind: Generic, err: err}
}

// NewExhausted wraps err as a fatal, non-recoverable error for a
// collaborator that has given up retrying on its own (e.g. a poll loop
// that hit its own consecutive-failure ceiling). Unlike Config, this
// kind isn't a misconfiguration — it's a sustained upstream outage the
// process has already spent its own retry budget waiting out.
func NewExhausted(err error) error {
	return &Error{kind: Exhausted, err: err}
}

// KindOf classifies err, defaulting to Generic for anything not raised
// through this package.
func KindOf(err error) Kind {
	var e *Error
	if as, ok := err.(*Error); ok {
		e = as
	} else if err == nil {
		return Generic
	}
	if e != nil {
		return e.kind
	}
	return Generic
}

// Recoverable reports whether the state machine's outer loop may log and
// continue rather than abort the process.
func Recoverable(err error) bool {
	kind := KindOf(err)
	return kind != Config && kind != Exhausted
}
