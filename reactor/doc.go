// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the single-threaded cooperative event loop
// abstraction that Connections are driven from, and a default
// implementation (Loop) usable standalone; each server in package server
// creates its own Loop.
package reactor
