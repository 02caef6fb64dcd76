// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for the dataflow package.
var (
	// ErrPortNotFound is returned when a named port does not exist.
	ErrPortNotFound = errors.New("port not found")

	// ErrDuplicatePort is returned when adding a port whose name is taken in that direction.
	ErrDuplicatePort = errors.New("port with this name already exists")

	// ErrReservedPort is returned when removing or shadowing the implicit Trigger port.
	ErrReservedPort = errors.New("port is reserved")

	// ErrTypeMismatch is returned when a packet's type differs from the port's declared type.
	ErrTypeMismatch = errors.New("packet type does not match port type")

	// ErrWrongDirection is returned when an input operation targets an output port or vice versa.
	ErrWrongDirection = errors.New("port has the wrong direction")

	// ErrInvalidPortName is returned when a port name is empty.
	ErrInvalidPortName = errors.New("port name must not be empty")
)

// PortError wraps an error with the port that caused it.
type PortError struct {
	Port string
	Err  error
}

// Error returns the error message.
func (e *PortError) Error() string {
	return fmt.Sprintf("port %q: %v", e.Port, e.Err)
}

// Unwrap returns the underlying error.
func (e *PortError) Unwrap() error {
	return e.Err
}

// NewPortError creates a PortError.
func NewPortError(port string, err error) *PortError {
	return &PortError{
		Port: port,
		Err:  err,
	}
}
