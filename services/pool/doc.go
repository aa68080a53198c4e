// Package pool implements the pool service: node and cloud pools of the
// calling system, node assignment and the extended pool view.
package pool
