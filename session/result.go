package session

// User is the identity of an authenticated session.
type User struct {
	ID       string `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
}

// Result is the outcome of ValidateToken. Exactly one of Authenticated and Err is set.
type Result struct {
	Authenticated bool
	UserID        string
	FullName      string
	Err           *ValidationError
}

func authenticated(claims *TokenClaims) Result {
	return Result{Authenticated: true, UserID: claims.Subject, FullName: claims.FullName}
}

func rejected(err *ValidationError) Result {
	return Result{Err: err}
}

// Rejected reports whether the token was refused.
func (r Result) Rejected() bool {
	return !r.Authenticated
}

// Kind returns the rejection kind, or "" for an authenticated result.
func (r Result) Kind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// User returns the authenticated identity.
func (r Result) User() (User, bool) {
	if !r.Authenticated {
		return User{}, false
	}
	return User{ID: r.UserID, FullName: r.FullName}, true
}
