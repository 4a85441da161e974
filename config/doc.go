// Package config loads the tagcached daemon configuration.
//
// A YAML file is decoded first, then environment variables prefixed with
// TAGCACHE_ override individual fields, then the result is validated:
//
//	cfg, err := config.Load("/etc/tagcached.yaml")
//
// Environment names follow the YAML nesting, for example
// TAGCACHE_SERVER_ADDR, TAGCACHE_CACHE_INDEX_TYPE or
// TAGCACHE_OBSERVE_LOG_LEVEL. Descriptor options are only read from the file.
package config
