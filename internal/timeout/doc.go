// Package timeout manages named delayed callbacks. Each slot holds at most one
// pending timer; arming an armed slot is a no-op.
package timeout
