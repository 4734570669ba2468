package postgres

import "strings"

// BuildDSN adjusts a connection string for the environment. Development connections
// default to sslmode=disable. Other environments sit behind a transaction pooler, which
// cannot hold server-side prepared statements, so the simple protocol is forced.
func BuildDSN(dsn, environment string) string {
	if environment == "development" {
		if !strings.Contains(dsn, "sslmode") {
			dsn = appendParam(dsn, "sslmode=disable")
		}
		return dsn
	}
	if !strings.Contains(dsn, "default_query_exec_mode") {
		dsn = appendParam(dsn, "default_query_exec_mode=simple_protocol")
	}
	return dsn
}

func appendParam(dsn, param string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return dsn + "&" + param
		}
		return dsn + "?" + param
	}
	if dsn == "" {
		return param
	}
	return dsn + " " + param
}
