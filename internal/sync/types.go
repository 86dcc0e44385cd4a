package sync

import (
	"errors"
	"strings"
	"time"

	"github.com/xelth-com/eckwmsfield/internal/models"
)

// Cycle preconditions. None of them touch local data.
var (
	ErrOffline         = errors.New("server is not reachable")
	ErrUnauthenticated = errors.New("no valid session")
	ErrAlreadySyncing  = errors.New("synchronization already in progress")
)

// KindResult counts what one kind's reconciliation did.
type KindResult struct {
	Kind models.Kind `json:"kind"`

	// Upload phase
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Purged    int `json:"purged"`
	Conflicts int `json:"conflicts"`

	// Download phase
	Downloaded int `json:"downloaded"`
	Refreshed  int `json:"refreshed"`
	Removed    int `json:"removed"`

	Errors []string `json:"errors,omitempty"`

	errs  []error
	fatal bool
}

// Uploaded is the number of local changes the server accepted.
func (k *KindResult) Uploaded() int { return k.Created + k.Updated + k.Deleted }

// OK reports whether the kind reconciled without any error.
func (k *KindResult) OK() bool { return len(k.errs) == 0 }

func (k *KindResult) fail(err error) {
	k.errs = append(k.errs, err)
	k.Errors = append(k.Errors, err.Error())
}

// abort records an error that stopped the kind before it finished.
func (k *KindResult) abort(err error) {
	k.fail(err)
	k.fatal = true
}

// Result is the outcome of one synchronization cycle.
type Result struct {
	Success   bool          `json:"success"`
	Message   string        `json:"message"`
	Errors    []string      `json:"errors,omitempty"`
	Kinds     []KindResult  `json:"kinds,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`

	errs []error
}

// Err joins every error of the cycle, nil on success.
func (r *Result) Err() error { return errors.Join(r.errs...) }

func failed(started time.Time, err error) Result {
	return Result{
		Success:   false,
		Message:   err.Error(),
		Errors:    []string{err.Error()},
		StartedAt: started,
		Duration:  time.Since(started),
		errs:      []error{err},
	}
}

func (r *Result) add(k KindResult) {
	r.Kinds = append(r.Kinds, k)
	r.errs = append(r.errs, k.errs...)
	r.Errors = append(r.Errors, k.Errors...)
}

func (r *Result) finish() {
	r.Duration = time.Since(r.StartedAt)
	r.Success = len(r.errs) == 0
	if r.Success {
		r.Message = "synchronization completed"
		return
	}
	r.Message = strings.Join(r.Errors, "; ")
}
