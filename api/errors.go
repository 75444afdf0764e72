package api

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
)

type ErrorKey string

func (e ErrorKey) String() string {
	return string(e)
}

type ErrorCategory string

func (e ErrorCategory) String() string {
	return string(e)
}

// AppError carries the information needed to log an export failure and report it to the client
type AppError struct {
	Err error `json:"-"`

	// Key is stable and meant for clients to branch on
	Key ErrorKey `json:"key"`

	HttpStatus int `json:"status"`

	Category ErrorCategory `json:"-"`

	Message string `json:"error"`

	// Extra data about the failure, e.g. missing entry ids
	Extras map[string]interface{} `json:"extras,omitempty"`
}

func (a *AppError) Error() string {
	if a.Err == nil {
		return a.Key.String()
	}
	return a.Err.Error()
}

func (a *AppError) Unwrap() error {
	return a.Err
}

// NewAppError returns a new AppError with its Err, Key and Category set
func NewAppError(err error, key ErrorKey, category ErrorCategory) *AppError {
	appErr := &AppError{
		Err:      err,
		Key:      key,
		Category: category,
	}
	appErr.SetHttpStatusFromCategory()
	appErr.LoadMessage()
	return appErr
}

// SetHttpStatusFromCategory assigns the appropriate HTTP status based on the error category, if not
// already set.
func (a *AppError) SetHttpStatusFromCategory() {
	if a.HttpStatus != 0 {
		return
	}

	switch a.Category {
	case CategoryInternal, CategoryDatabase:
		a.HttpStatus = http.StatusInternalServerError
	case CategoryNotFound:
		a.HttpStatus = http.StatusNotFound
	default:
		a.HttpStatus = http.StatusBadRequest
	}
}

// LoadMessage fills in the client-facing message. Internal errors never expose
// their cause.
func (a *AppError) LoadMessage() {
	if a.HttpStatus == http.StatusInternalServerError {
		a.Message = keyToReadableString(ErrorGenericInternalServer.String())
		return
	}
	if a.Err != nil {
		a.Message = a.Err.Error()
		return
	}
	a.Message = keyToReadableString(a.Key.String())
}

// AsAppError returns err as an *AppError, wrapping anything that is not one
// into a generic internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(err, ErrorGenericInternalServer, CategoryInternal)
}

// keyToReadableString takes a key like ErrorSomethingSomethingOther and returns Something something other
func keyToReadableString(key string) string {
	re := regexp.MustCompile(`[A-Z][^A-Z]*`)
	words := re.FindAllString(key, -1)

	if len(words) == 0 {
		return key
	}
	if words[0] == "Error" && len(words) > 1 {
		words = words[1:]
	}

	for i := 1; i < len(words); i++ {
		words[i] = strings.ToLower(words[i])
	}

	return strings.Join(words, " ")
}
