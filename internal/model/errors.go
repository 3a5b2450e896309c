package model

import "errors"

// ErrStorage marks failures creating, writing or removing files and directories
// that belong to a session.
var ErrStorage = errors.New("storage error")
