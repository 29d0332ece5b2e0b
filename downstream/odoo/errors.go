package odoo

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	outbox "github.com/TimKotowski/pg-outbox-relay"
)

// HTTPError is a non 200 answer from the Odoo web server.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("odoo http %d: %s", e.StatusCode, e.Body)
}

// RPCError is the error member of a JSON-RPC response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"data"`
}

func (e *RPCError) Error() string {
	if e.Data.Message != "" {
		return fmt.Sprintf("odoo rpc %s: %s", e.Exception(), e.Data.Message)
	}
	return fmt.Sprintf("odoo rpc %d: %s", e.Code, e.Message)
}

// Exception returns the unqualified Python exception name, e.g. ValidationError.
func (e *RPCError) Exception() string {
	name := e.Data.Name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func (e *RPCError) SessionExpired() bool {
	return e.Code == 100 || e.Exception() == "SessionExpiredException"
}

// classify tags err with the outbox error kind. Errors already tagged are kept.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var de *outbox.DispatchError
	if errors.As(err, &de) {
		return err
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError {
			return outbox.Transient(err)
		}
		return outbox.Permanent(err)
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if _, ok := permanentExceptions[rpcErr.Exception()]; ok {
			return outbox.Permanent(err)
		}
		return outbox.Transient(err)
	}

	// Transport failures, timeouts and garbled responses.
	return outbox.Transient(err)
}
