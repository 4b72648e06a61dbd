//go:build cxxdebug

package invariant

const enabled = true
