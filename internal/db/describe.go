package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DSNInfo is a credential-free summary of a DSN, safe for logs.
type DSNInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

// String renders the summary for log lines.
func (i DSNInfo) String() string {
	if i.Type == DialectSQLite {
		return fmt.Sprintf("sqlite path=%s", i.Path)
	}
	return fmt.Sprintf("postgres host=%s port=%d db=%s user=%s sslmode=%s", i.Host, i.Port, i.Name, i.User, i.SSLMode)
}

// DescribeDSN parses a DSN into a DSNInfo without retaining the password.
func DescribeDSN(dsn string) (DSNInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return DSNInfo{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return DSNInfo{
			Type: DialectSQLite,
			Path: strings.TrimSpace(pathPart),
		}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return DSNInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return DSNInfo{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		info := DSNInfo{
			Type:    DialectPostgres,
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if info.SSLMode == "" {
			info.SSLMode = "disable"
		}
		if u.User != nil {
			info.User = strings.TrimSpace(u.User.Username())
			_, info.PasswordSet = u.User.Password()
		}
		return info, nil
	default:
		return DSNInfo{}, fmt.Errorf("unsupported dsn scheme")
	}
}
