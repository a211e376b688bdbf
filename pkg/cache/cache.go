// Package cache provides a small key/value cache used for computed payoff
// quotes.
package cache

type Cache interface {
	Get(key string) (string, bool)
	Set(key string, value string) error
}
