package data

import (
	"fmt"
	"os"
	"strings"
)

// GetDSN returns the database DSN configured via environment.
func GetDSN() (string, error) {
	for _, key := range []string{"DATABASE_DSN", "MYSQL_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn, nil
		}
	}
	return "", fmt.Errorf("DATABASE_DSN is not set")
}
