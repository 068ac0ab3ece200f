// Package instance keeps a launcher single-instance per machine.
//
// Acquire takes an exclusive, OS-visible lock named after the application.
// The winner becomes the Primary and listens for activation signals on a
// local socket keyed by the same name; every later launch becomes a
// Secondary, forwards its argv and working directory to the Primary and
// exits without building any UI. The lock is held for the life of the
// process and released by the OS when the process dies, however it dies.
package instance
