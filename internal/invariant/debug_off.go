//go:build !cxxdebug

package invariant

const enabled = false
